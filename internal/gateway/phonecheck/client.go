package phonecheck

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"salesbridge-service/internal/pkg/cache"
)

// Client validates phone numbers against an external checker. Any
// transport or decode failure counts as "not valid": the identity flow
// must fail closed rather than trust an unverifiable number.
type Client struct {
	url      string
	http     *http.Client
	logger   *zap.Logger
	cache    *cache.Store
	cacheTTL time.Duration
}

func NewClient(url string, store *cache.Store, cacheTTL time.Duration, logger *zap.Logger) *Client {
	return &Client{
		url:      url,
		http:     &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
		cache:    store,
		cacheTTL: cacheTTL,
	}
}

// Validate reports whether the number is reachable on the channel.
// Verdicts are cached; failures are not.
func (c *Client) Validate(ctx context.Context, number string) (bool, error) {
	verdict, err := c.cache.Lookup(ctx, "phonecheck:"+number, c.cacheTTL, func(ctx context.Context) (string, error) {
		ok, err := c.check(ctx, number)
		if err != nil {
			return "", err
		}
		if ok {
			return "1", nil
		}
		return "0", nil
	})
	if err != nil {
		c.logger.Warn("phone validation failed", zap.String("number", number), zap.Error(err))
		return false, err
	}
	return verdict == "1", nil
}

func (c *Client) check(ctx context.Context, number string) (bool, error) {
	payload, err := json.Marshal(map[string]string{"number": number})
	if err != nil {
		return false, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("phone check request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("phone check status %d", resp.StatusCode)
	}

	var result struct {
		IsValid bool `json:"is_valid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("decode phone check response: %w", err)
	}
	return result.IsValid, nil
}
