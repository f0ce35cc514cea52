// Package identity resolves the local user from configuration or from the
// relay's identity endpoint.
package identity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/dkeye/LiveCall/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"
)

const defaultTimeout = 10 * time.Second

type Client struct {
	URL  string
	http *fasthttp.Client

	mu      sync.Mutex
	cookies map[string]string
}

func New(url string) *Client {
	return &Client{
		URL:     url,
		http:    &fasthttp.Client{Name: "livecall-softphone"},
		cookies: make(map[string]string),
	}
}

// Resolve returns the configured identity when both id and name are set.
// Otherwise it asks the identity endpoint, presenting id as the client
// token so the same user id comes back. Cookies from earlier answers are
// sent back, so the relay remembers a name set through this client. A
// fresh client with only an id comes back with the relay's default name.
func (c *Client) Resolve(ctx context.Context, id domain.UserID, name string) (domain.User, error) {
	if id != "" && name != "" {
		return domain.NewUser(id, name)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.URL)
	req.Header.SetMethod(fasthttp.MethodGet)
	if name != "" {
		req.URI().QueryArgs().Set("name", name)
	}
	c.mu.Lock()
	for k, v := range c.cookies {
		req.Header.SetCookie(k, v)
	}
	c.mu.Unlock()
	if id != "" {
		req.Header.SetCookie("ct", string(id))
	}

	timeout := defaultTimeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	if err := c.http.DoTimeout(req, resp, timeout); err != nil {
		return domain.User{}, fmt.Errorf("identity request: %w", err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return domain.User{}, fmt.Errorf("identity: unexpected status code: %d, body: %s", resp.StatusCode(), string(resp.Body()))
	}

	c.keepCookies(resp)

	var u domain.User
	if err := sonic.Unmarshal(resp.Body(), &u); err != nil {
		return domain.User{}, fmt.Errorf("identity decode: %w", err)
	}
	u, err := domain.NewUser(u.UserID, u.Name)
	if err != nil {
		return domain.User{}, fmt.Errorf("identity: %w", err)
	}
	log.Info().Str("module", "identity").Str("user", string(u.UserID)).Str("name", u.Name).Msg("identity resolved")
	return u, nil
}

func (c *Client) keepCookies(resp *fasthttp.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	resp.Header.VisitAllCookie(func(_, value []byte) {
		var ck fasthttp.Cookie
		if err := ck.ParseBytes(value); err != nil {
			return
		}
		c.cookies[string(ck.Key())] = string(ck.Value())
	})
}
