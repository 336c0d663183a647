package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"feasibility-bot/internal/config"
)

// actionTimeout bounds single interactions that have no caller supplied bound.
const actionTimeout = 15 * time.Second

// Controller is the chromedp backed Page.
type Controller struct {
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
	observer    Observer
	closeOnce   sync.Once
}

func NewController(parentCtx context.Context, cfg config.Browser, obs Observer) (*Controller, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.NoSandbox,
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-accelerated-2d-canvas", true),
		chromedp.DisableGPU,
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parentCtx, opts...)
	ctx, cancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...any) {
		obs.PageEvent("chromedp", fmt.Sprintf(format, args...))
	}))

	chromedp.ListenTarget(ctx, func(ev any) {
		switch ev := ev.(type) {
		case *runtime.EventConsoleAPICalled:
			parts := make([]string, 0, len(ev.Args))
			for _, arg := range ev.Args {
				parts = append(parts, string(arg.Value))
			}
			obs.PageEvent("console."+string(ev.Type), strings.Join(parts, " "))
		case *runtime.EventExceptionThrown:
			obs.PageEvent("exception", ev.ExceptionDetails.Error())
		case *network.EventLoadingFailed:
			obs.PageEvent("network", ev.ErrorText)
		}
	})

	// The first Run starts the browser.
	if err := chromedp.Run(ctx, network.Enable()); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("failed to initialize browser: %w", err)
	}

	obs.SessionOpened(config.DriverChromedp)

	return &Controller{
		allocCancel: allocCancel,
		ctx:         ctx,
		cancel:      cancel,
		observer:    obs,
	}, nil
}

// runContext derives a bounded context from the tab context that is also
// cancelled when the caller's context is.
func (c *Controller) runContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithTimeout(c.ctx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (c *Controller) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	runCtx, cancel := c.runContext(ctx, timeout)
	defer cancel()

	err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
	)
	if err == nil {
		return nil
	}
	if !errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}

	// Slow third-party resources can hold the load event back long after
	// the form itself is usable.
	state, stateErr := c.readyState(ctx)
	if stateErr == nil && (state == "interactive" || state == "complete") {
		c.observer.PageEvent("navigation", fmt.Sprintf("load of %s timed out, continuing with readyState %q", url, state))
		return nil
	}
	return fmt.Errorf("navigation to %s failed: %w", url, err)
}

func (c *Controller) readyState(ctx context.Context) (string, error) {
	runCtx, cancel := c.runContext(ctx, 5*time.Second)
	defer cancel()

	var state string
	if err := chromedp.Run(runCtx, chromedp.Evaluate(`document.readyState`, &state)); err != nil {
		return "", err
	}
	return state, nil
}

func (c *Controller) Location(ctx context.Context) (string, error) {
	runCtx, cancel := c.runContext(ctx, 5*time.Second)
	defer cancel()

	var url string
	if err := chromedp.Run(runCtx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("failed to get current URL: %w", err)
	}
	return url, nil
}

func (c *Controller) Screenshot(ctx context.Context, scope string) ([]byte, error) {
	runCtx, cancel := c.runContext(ctx, actionTimeout)
	defer cancel()

	var buf []byte
	var action chromedp.Action
	if scope == "" {
		action = chromedp.FullScreenshot(&buf, 100)
	} else {
		action = chromedp.Screenshot(scope, &buf, chromedp.ByQuery, chromedp.NodeVisible)
	}

	if err := chromedp.Run(runCtx, action); err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.allocCancel()
		c.observer.SessionClosed()
	})
	return nil
}
