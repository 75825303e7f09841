package auth

import (
	"bufio"
	"context"
	"crypto/sha1"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const hibpRangeURL = "https://api.pwnedpasswords.com/range/"

// HIBPClient queries the Have-I-Been-Pwned range endpoint using the
// k-anonymity scheme: only the first five hex characters of the SHA-1
// leave the process.
type HIBPClient struct {
	http *http.Client
	base string
}

func NewHIBPClient() *HIBPClient {
	return &HIBPClient{
		http: &http.Client{Timeout: 10 * time.Second},
		base: hibpRangeURL,
	}
}

// NewHIBPClientForTest points the client at a local stand-in server.
func NewHIBPClientForTest(base string) *HIBPClient {
	return &HIBPClient{
		http: &http.Client{Timeout: 10 * time.Second},
		base: strings.TrimSuffix(base, "/") + "/",
	}
}

// Pwned reports whether the password appears in a known breach: the range
// response contains the remaining 35 hash characters with a non-zero count.
func (c *HIBPClient) Pwned(ctx context.Context, password string) (bool, error) {
	sum := sha1.Sum([]byte(password))
	full := strings.ToUpper(fmt.Sprintf("%x", sum))
	prefix, suffix := full[:5], full[5:]

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+prefix, nil)
	if err != nil {
		return false, fmt.Errorf("hibp request: %w", err)
	}
	req.Header.Set("Add-Padding", "true")

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("hibp query: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("hibp status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		rest, count, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if strings.EqualFold(rest, suffix) && strings.TrimLeft(count, "0") != "" {
			return true, nil
		}
	}
	return false, scanner.Err()
}
