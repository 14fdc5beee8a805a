package httpclient

import (
	"context"
	"fmt"
	"hash/fnv"
	"net/url"

	"github.com/data-power-io/commerce-export/internal/cache"
)

// ResponseCache memoizes raw GET bodies for the lifetime of one run.
type ResponseCache = cache.Locked[string, []byte]

// CacheKey identifies a GET by absolute URL and the options that change its
// response. The token is hashed so it is never held in the key.
func CacheKey(fullURL, token string) string {
	if token == "" {
		return "GET " + fullURL
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(token))
	return fmt.Sprintf("GET %s #%x", fullURL, h.Sum64())
}

// GetJSONCached serves a GET from rc when present, otherwise performs it and
// stores the body. It reports whether the response came from the cache. Only
// successful responses are cached.
func (c *Client) GetJSONCached(ctx context.Context, rc *ResponseCache, path string, query url.Values, token string, target any) (bool, error) {
	if rc == nil {
		return false, c.GetJSON(ctx, path, query, token, target)
	}

	key := CacheKey(c.URL(path, query), token)
	if body, ok := rc.Get(key); ok {
		c.metrics.RecordCacheLookup("responses", true)
		resp := &Response{StatusCode: 200, Body: body}
		return true, resp.JSON(target)
	}
	c.metrics.RecordCacheLookup("responses", false)

	resp, err := c.Get(ctx, path, query, token)
	if err != nil {
		return false, err
	}
	if err := resp.JSON(target); err != nil {
		return false, err
	}
	rc.Set(key, resp.Body)
	return false, nil
}
