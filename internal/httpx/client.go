package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/temoto/robotstxt"
	"golang.org/x/time/rate"

	"leadharvest/internal/urlutil"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Client fetches raw HTML over plain HTTP with a browser-identifying header set,
// per-host rate limiting, robots.txt checks, and a bounded fixed-delay retry.
type Client struct {
	userAgent  string
	timeout    time.Duration
	retries    int
	retryDelay time.Duration
	useRobots  bool

	mu          sync.Mutex
	limiters    map[string]*rate.Limiter
	robotsCache map[string]*robotstxt.RobotsData
	robotsHTTP  *http.Client
}

type Option func(*Client)

// WithRetries sets how many additional attempts follow a retryable failure.
// Zero means a single attempt.
func WithRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.retries = n
		}
	}
}

func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.retryDelay = d
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithoutRobots disables robots.txt lookups (used by tests).
func WithoutRobots() Option {
	return func(c *Client) { c.useRobots = false }
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		userAgent:   defaultUserAgent,
		timeout:     20 * time.Second,
		retries:     2,
		retryDelay:  2 * time.Second,
		useRobots:   true,
		limiters:    map[string]*rate.Limiter{},
		robotsCache: map[string]*robotstxt.RobotsData{},
		robotsHTTP:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch retrieves the document at rawURL. Any 2xx is success; everything else
// comes back as a *FetchError carrying the classified kind.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	target, host, err := urlutil.Normalize(rawURL)
	if err != nil {
		return nil, &FetchError{Kind: KindNetwork, URL: rawURL, Err: err}
	}

	if c.useRobots && !c.allowed(ctx, target) {
		return nil, &FetchError{Kind: KindBlocked, URL: target, Err: errors.New("disallowed by robots.txt")}
	}

	var lastErr *FetchError
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			if err := sleepWithContext(ctx, c.retryDelay); err != nil {
				return nil, &FetchError{Kind: KindTimeout, URL: target, Err: err}
			}
		}
		if err := c.limiterFor(host).Wait(ctx); err != nil {
			return nil, &FetchError{Kind: KindTimeout, URL: target, Err: err}
		}

		body, fe := c.fetchOnce(ctx, target)
		if fe == nil {
			return body, nil
		}
		lastErr = fe
		if !fe.Retryable() {
			break
		}
	}
	return nil, lastErr
}

func (c *Client) fetchOnce(ctx context.Context, target string) ([]byte, *FetchError) {
	col := colly.NewCollector(colly.UserAgent(c.userAgent))
	col.IgnoreRobotsTxt = true // checked once up front, not per request
	col.SetRequestTimeout(c.timeout)

	col.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
		r.Headers.Set("Upgrade-Insecure-Requests", "1")
		if ctx.Err() != nil {
			r.Abort()
		}
	})

	var (
		body   []byte
		status int
		reqErr error
	)
	col.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	col.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		reqErr = err
	})

	if err := col.Visit(target); err != nil {
		reqErr = err
	}
	col.Wait()

	if ctx.Err() != nil {
		return nil, &FetchError{Kind: KindTimeout, URL: target, Err: ctx.Err()}
	}
	if status >= 200 && status < 300 {
		return body, nil
	}
	if status > 0 {
		if reqErr == nil {
			reqErr = fmt.Errorf("status %d", status)
		}
		return nil, &FetchError{Kind: KindForStatus(status), URL: target, Err: reqErr}
	}
	if reqErr == nil {
		reqErr = errors.New("no response")
	}
	return nil, &FetchError{Kind: KindForErr(reqErr), URL: target, Err: reqErr}
}

func (c *Client) limiterFor(host string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := c.limiters[host]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Every(time.Second), 2) // 1 req/s, burst 2
	c.limiters[host] = l
	return l
}

func (c *Client) allowed(ctx context.Context, target string) bool {
	u, err := url.Parse(target)
	if err != nil {
		return true
	}
	data, err := c.robotsFor(ctx, u)
	if err != nil {
		return true // fail open, the site decides with a 403 if it cares
	}
	group := data.FindGroup(c.userAgent)
	if group == nil {
		group = data.FindGroup("*")
	}
	if group == nil {
		return true
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	return group.Test(path)
}

func (c *Client) robotsFor(ctx context.Context, u *url.URL) (*robotstxt.RobotsData, error) {
	host := u.Hostname()
	c.mu.Lock()
	if data, ok := c.robotsCache[host]; ok {
		c.mu.Unlock()
		return data, nil
	}
	c.mu.Unlock()

	robotsURL := fmt.Sprintf("%s://%s/robots.txt", u.Scheme, u.Host)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.robotsHTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.robotsCache[host] = data
	c.mu.Unlock()
	return data, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
