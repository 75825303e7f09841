package meal

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/mealpedant/api/internal/apperror"
	"github.com/mealpedant/api/internal/kv"
)

// FeedSource supplies the flattened feed; satisfied by *Store and stubbed
// in tests.
type FeedSource interface {
	FeedRows(ctx context.Context) ([]FeedRow, error)
}

// Cache materialises the feed per audience and keeps a content hash
// alongside, so clients can poll the hash instead of the whole payload.
// Population is lazy; any write path invalidates all four keys.
type Cache struct {
	source FeedSource
	kv     *kv.Client
}

func NewCache(source FeedSource, kvc *kv.Client) *Cache {
	return &Cache{source: source, kv: kvc}
}

// GetAll returns the materialised feed for audience, building and storing
// it on a miss.
func (c *Cache) GetAll(ctx context.Context, audience string) (*MealInfo, error) {
	var info MealInfo
	found, err := c.kv.GetJSON(ctx, kv.MealCacheKey(audience), &info)
	if err != nil {
		return nil, apperror.Io(err)
	}
	if found {
		return &info, nil
	}
	built, _, err := c.rebuild(ctx, audience)
	return built, err
}

// GetHash returns the feed content hash for audience, building the feed on
// a miss.
func (c *Cache) GetHash(ctx context.Context, audience string) (string, error) {
	hash, found, err := c.kv.GetString(ctx, kv.MealCacheHashKey(audience))
	if err != nil {
		return "", apperror.Io(err)
	}
	if found {
		return hash, nil
	}
	_, hash, err = c.rebuild(ctx, audience)
	return hash, err
}

// Invalidate drops both audiences' feed and hash keys in one delete. Every
// meal or photo mutation ends here.
func (c *Cache) Invalidate(ctx context.Context) error {
	err := c.kv.Del(ctx,
		kv.MealCacheKey(AudienceBoth),
		kv.MealCacheHashKey(AudienceBoth),
		kv.MealCacheKey(AudienceJack),
		kv.MealCacheHashKey(AudienceJack),
	)
	if err != nil {
		return apperror.Io(err)
	}
	return nil
}

func (c *Cache) rebuild(ctx context.Context, audience string) (*MealInfo, string, error) {
	rows, err := c.source.FeedRows(ctx)
	if err != nil {
		return nil, "", apperror.Database(err)
	}

	info := Fold(rows, audience)
	hash, err := FeedHash(info)
	if err != nil {
		return nil, "", err
	}

	if err := c.kv.SetJSON(ctx, kv.MealCacheKey(audience), info, 0); err != nil {
		return nil, "", apperror.Io(err)
	}
	if err := c.kv.SetString(ctx, kv.MealCacheHashKey(audience), hash, 0); err != nil {
		return nil, "", apperror.Io(err)
	}
	return info, hash, nil
}

// Fold groups the flattened rows by date, preserving the store's
// (date desc, person) order. The jack audience drops Dave's entries,
// original photo names, and any date left empty.
func Fold(rows []FeedRow, audience string) *MealInfo {
	info := &MealInfo{
		Descriptions: make(map[int64]string),
		Categories:   make(map[int64]string),
		DateMeals:    []DateMeal{},
	}
	anonymous := audience == AudienceJack

	var current *DateMeal
	for i := range rows {
		r := &rows[i]
		if anonymous && r.Person == PersonDave {
			continue
		}

		if current == nil || current.Date != r.Date {
			info.DateMeals = append(info.DateMeals, DateMeal{Date: r.Date})
			current = &info.DateMeals[len(info.DateMeals)-1]
		}

		info.Descriptions[r.DescriptionID] = r.Description
		info.Categories[r.CategoryID] = r.Category

		pm := &PersonMeal{
			DescriptionID:  r.DescriptionID,
			CategoryID:     r.CategoryID,
			Restaurant:     r.Restaurant,
			Takeaway:       r.Takeaway,
			Vegetarian:     r.Vegetarian,
			PhotoConverted: r.PhotoConverted,
		}
		if !anonymous {
			pm.PhotoOriginal = r.PhotoOriginal
		}

		switch r.Person {
		case PersonJack:
			current.Jack = pm
		case PersonDave:
			current.Dave = pm
		}
	}
	return info
}

// FeedHash is the lowercase hex BLAKE3 digest of the JSON encoding of the
// date_meals list alone; the id->text maps do not participate.
func FeedHash(info *MealInfo) (string, error) {
	raw, err := json.Marshal(info.DateMeals)
	if err != nil {
		return "", apperror.Serde(fmt.Errorf("encode date_meals: %w", err))
	}
	sum := blake3.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
