package auth

import (
	"bufio"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const DefaultPwnedAPIURL = "https://api.pwnedpasswords.com"

// PwnedClient queries a k-anonymity password range API: only the first five
// hex characters of the SHA-1 leave the process.
type PwnedClient struct {
	BaseURL    string
	HTTPClient *http.Client
	UserAgent  string
}

func (c *PwnedClient) Breached(ctx context.Context, password string) (bool, error) {
	base := strings.TrimRight(c.BaseURL, "/")
	if base == "" {
		base = DefaultPwnedAPIURL
	}
	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 3 * time.Second}
	}

	sum := sha1.Sum([]byte(password))
	digest := strings.ToUpper(hex.EncodeToString(sum[:]))
	prefix, suffix := digest[:5], digest[5:]

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/range/"+prefix, nil)
	if err != nil {
		return false, fmt.Errorf("pwned request: %w", err)
	}
	req.Header.Set("Add-Padding", "true")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return false, fmt.Errorf("pwned request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("pwned status %d", resp.StatusCode)
	}

	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		hash, count, ok := strings.Cut(strings.TrimSpace(sc.Text()), ":")
		if !ok || !strings.EqualFold(hash, suffix) {
			continue
		}
		// Padding entries carry a zero count.
		return strings.TrimSpace(count) != "0", nil
	}
	if err := sc.Err(); err != nil {
		return false, fmt.Errorf("pwned read: %w", err)
	}
	return false, nil
}

// CommonPasswords rejects a short list of passwords that show up at the top
// of every leak corpus, without a network call.
type CommonPasswords struct{}

var commonPasswords = map[string]bool{
	"password":     true,
	"password1":    true,
	"password1!":   true,
	"password123":  true,
	"password123!": true,
	"p@ssw0rd":     true,
	"p@ssword1":    true,
	"passw0rd!":    true,
	"qwerty123!":   true,
	"qwerty1!":     true,
	"welcome1!":    true,
	"welcome123!":  true,
	"letmein1!":    true,
	"admin123!":    true,
	"iloveyou1!":   true,
	"abc123!@#":    true,
	"changeme1!":   true,
	"summer2024!":  true,
	"winter2024!":  true,
	"football1!":   true,
}

func (CommonPasswords) Breached(_ context.Context, password string) (bool, error) {
	return commonPasswords[strings.ToLower(password)], nil
}
