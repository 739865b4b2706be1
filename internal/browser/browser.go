package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"leadharvest/internal/httpx"
)

// Browser owns one headless Chrome process. It is acquired at run start,
// exclusively held by one adapter for that run, and must be released with
// Close on every exit path.
type Browser struct {
	browser    *rod.Browser
	navTimeout time.Duration
	settle     time.Duration
	cardWait   time.Duration
}

type Config struct {
	NavTimeout  time.Duration // whole-navigation budget per fetch
	Settle      time.Duration // post-DOMContentLoaded render delay
	CardWait    time.Duration // bounded wait for a listing card to show up
	UserDataDir string
}

func (c *Config) withDefaults() {
	if c.NavTimeout <= 0 {
		c.NavTimeout = 45 * time.Second
	}
	if c.Settle <= 0 {
		c.Settle = 3 * time.Second
	}
	if c.CardWait <= 0 {
		c.CardWait = 10 * time.Second
	}
}

var chromeBins = []string{
	"/usr/bin/google-chrome",
	"/usr/bin/google-chrome-stable",
	"/usr/bin/chromium",
	"/usr/bin/chromium-browser",
	"/snap/bin/chromium",
}

// Launch starts the headless browser process. A failure here is fatal for the
// run; nothing is retried at this level.
func Launch(cfg Config) (*Browser, error) {
	cfg.withDefaults()

	l := launcher.New().
		Headless(true).
		NoSandbox(true).
		Leakless(false).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("no-first-run").
		Set("no-default-browser-check").
		Set("disable-extensions").
		Set("disable-background-networking").
		Set("disable-sync").
		Set("mute-audio")

	if cfg.UserDataDir != "" {
		if err := os.MkdirAll(cfg.UserDataDir, 0o755); err != nil {
			slog.Warn("browser user data dir unavailable, using default", "dir", cfg.UserDataDir, "error", err)
		} else {
			l = l.UserDataDir(cfg.UserDataDir)
		}
	}

	for _, bin := range chromeBins {
		if _, err := os.Stat(bin); err == nil {
			l = l.Bin(bin)
			break
		}
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	return &Browser{
		browser:    b,
		navTimeout: cfg.NavTimeout,
		settle:     cfg.Settle,
		cardWait:   cfg.CardWait,
	}, nil
}

func (b *Browser) Close() error {
	if b.browser != nil {
		return b.browser.Close()
	}
	return nil
}

// FetchPage opens a fresh tab, navigates, and returns the rendered HTML.
// Navigation waits for DOMContentLoaded rather than network idle, then a fixed
// settle delay, then a bounded wait for any of cardSelectors to become visible.
// A card that never shows up is not an error: the current document is returned
// and the extractor is expected to yield zero fragments.
func (b *Browser) FetchPage(ctx context.Context, url string, cardSelectors []string) (string, error) {
	page, err := b.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", &httpx.FetchError{Kind: httpx.KindNetwork, URL: url, Err: err}
	}
	defer page.Close()

	page = page.Context(ctx).Timeout(b.navTimeout)

	domReady := page.WaitEvent(&proto.PageDomContentEventFired{})
	if err := page.Navigate(url); err != nil {
		return "", &httpx.FetchError{Kind: httpx.KindNetwork, URL: url, Err: err}
	}
	domReady()

	time.Sleep(b.settle)
	b.waitForCards(page, cardSelectors)

	html, err := page.HTML()
	if err != nil {
		return "", &httpx.FetchError{Kind: httpx.KindNetwork, URL: url, Err: err}
	}
	return html, nil
}

func (b *Browser) waitForCards(page *rod.Page, selectors []string) {
	if len(selectors) == 0 {
		return
	}
	deadline := time.Now().Add(b.cardWait)
	for time.Now().Before(deadline) {
		for _, sel := range selectors {
			has, el, err := page.Has(sel)
			if err != nil || !has || el == nil {
				continue
			}
			if visible, _ := el.Visible(); visible {
				return
			}
		}
		time.Sleep(250 * time.Millisecond)
	}
	slog.Debug("listing cards did not appear before deadline", "selectors", len(selectors))
}
