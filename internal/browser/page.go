// Package browser exposes the small set of page primitives the feasibility
// workflow drives, backed by chromedp or playwright.
package browser

import (
	"context"
	"fmt"
	"time"

	"feasibility-bot/internal/config"
)

// Page is one exclusively owned browser instance with a single tab.
type Page interface {
	// Navigate loads url. A load that times out after the document became
	// interactive is accepted.
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	// Clear focuses the field and wipes its content with select-all + delete.
	Clear(ctx context.Context, selector string) error
	// Type enters text one key at a time with keyDelay between keystrokes.
	Type(ctx context.Context, selector, text string, keyDelay time.Duration) error
	Click(ctx context.Context, selector string) error
	Location(ctx context.Context) (string, error)
	// FindAll returns the elements matching selector whose rendered text
	// satisfies match, in document order.
	FindAll(ctx context.Context, selector string, match func(text string) bool) ([]Element, error)
	// Screenshot captures the element matching scope, or the full page when
	// scope is empty.
	Screenshot(ctx context.Context, scope string) ([]byte, error)
	// Close releases the browser. Safe to call more than once.
	Close() error
}

// Element is a handle to a node returned by FindAll.
type Element interface {
	Text() string
	Click(ctx context.Context) error
}

// Open starts a fresh browser using the configured driver.
func Open(ctx context.Context, cfg config.Browser, obs Observer) (Page, error) {
	if obs == nil {
		obs = NopObserver{}
	}

	switch cfg.Driver {
	case "", config.DriverChromedp:
		c, err := NewController(ctx, cfg, obs)
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.DriverPlaywright:
		s, err := NewPlaywrightSession(cfg, obs)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown browser driver %q", cfg.Driver)
	}
}

// NewLauncher binds Open to cfg so each call starts a fresh browser.
func NewLauncher(cfg config.Browser) func(ctx context.Context, obs Observer) (Page, error) {
	return func(ctx context.Context, obs Observer) (Page, error) {
		return Open(ctx, cfg, obs)
	}
}
