package photo

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"

	"golang.org/x/image/draw"

	"github.com/mealpedant/api/internal/apperror"
)

const (
	boundingBox   = 1000
	watermarkPad  = 4
	outputQuality = 80
)

// Converter produces the watermarked derivative. The watermark PNG is read
// once at construction.
type Converter struct {
	watermark image.Image
}

func NewConverter(watermarkPath string) (*Converter, error) {
	raw, err := os.ReadFile(watermarkPath)
	if err != nil {
		return nil, fmt.Errorf("read watermark: %w", err)
	}
	mark, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode watermark: %w", err)
	}
	return &Converter{watermark: mark}, nil
}

// Convert decodes a JPEG, scales it to fit a 1000x1000 box preserving
// aspect ratio, stamps the watermark bottom-right with 4px padding and
// re-encodes at quality 80.
func (c *Converter) Convert(original []byte) ([]byte, error) {
	src, err := jpeg.Decode(bytes.NewReader(original))
	if err != nil {
		return nil, apperror.Image(fmt.Errorf("decode: %w", err))
	}

	dst := scale(src, boundingBox)
	stamped := c.stamp(dst)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, stamped, &jpeg.Options{Quality: outputQuality}); err != nil {
		return nil, apperror.Image(fmt.Errorf("encode: %w", err))
	}
	return buf.Bytes(), nil
}

// scale fits img inside a box x box square without upscaling.
func scale(img image.Image, box int) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	if w > box || h > box {
		if w >= h {
			h = h * box / w
			w = box
		} else {
			w = w * box / h
			h = box
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

func (c *Converter) stamp(dst *image.RGBA) *image.RGBA {
	mb := c.watermark.Bounds()
	db := dst.Bounds()
	offset := image.Pt(
		db.Max.X-mb.Dx()-watermarkPad,
		db.Max.Y-mb.Dy()-watermarkPad,
	)
	draw.Draw(dst, mb.Add(offset), c.watermark, mb.Min, draw.Over)
	return dst
}
