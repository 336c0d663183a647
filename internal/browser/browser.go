package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"feasibility-bot/internal/config"
)

// PlaywrightSession is the playwright backed Page.
type PlaywrightSession struct {
	pw       *playwright.Playwright
	browser  playwright.Browser
	context  playwright.BrowserContext
	page     playwright.Page
	observer Observer

	closeOnce sync.Once
	closeErr  error
}

func NewPlaywrightSession(cfg config.Browser, obs Observer) (*PlaywrightSession, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}

	launch := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
		Args: []string{
			"--no-sandbox",
			"--disable-setuid-sandbox",
			"--disable-dev-shm-usage",
			"--disable-accelerated-2d-canvas",
			"--disable-gpu",
			"--disable-blink-features=AutomationControlled",
		},
	}
	if cfg.ExecPath != "" {
		launch.ExecutablePath = playwright.String(cfg.ExecPath)
	}

	browser, err := pw.Chromium.Launch(launch)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	contextOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: cfg.WindowWidth, Height: cfg.WindowHeight},
	}
	if cfg.UserAgent != "" {
		contextOpts.UserAgent = playwright.String(cfg.UserAgent)
	}

	bctx, err := browser.NewContext(contextOpts)
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("create context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("create page: %w", err)
	}

	page.OnConsole(func(msg playwright.ConsoleMessage) {
		obs.PageEvent("console."+msg.Type(), msg.Text())
	})
	page.OnPageError(func(err error) {
		obs.PageEvent("exception", err.Error())
	})
	page.OnRequestFailed(func(req playwright.Request) {
		obs.PageEvent("network", "request failed: "+req.URL())
	})

	obs.SessionOpened(config.DriverPlaywright)

	return &PlaywrightSession{
		pw:       pw,
		browser:  browser,
		context:  bctx,
		page:     page,
		observer: obs,
	}, nil
}

func millis(d time.Duration) *float64 {
	return playwright.Float(float64(d.Milliseconds()))
}

// playwright calls are not context aware; a cancelled context stops the
// workflow before the next call.
func (s *PlaywrightSession) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// DOMContentLoaded rather than network idle, third-party assets on the
	// portal keep the network busy for a long time.
	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   millis(timeout),
	})
	if err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

func (s *PlaywrightSession) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: millis(timeout),
	})
	if err != nil {
		return fmt.Errorf("wait for element failed for selector '%s': %w", selector, err)
	}
	return nil
}

func (s *PlaywrightSession) Clear(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.page.Locator(selector).First().Click(playwright.LocatorClickOptions{Timeout: millis(actionTimeout)})
	if err == nil {
		err = s.page.Keyboard().Press("Control+A")
	}
	if err == nil {
		err = s.page.Keyboard().Press("Delete")
	}
	if err != nil {
		return fmt.Errorf("clear failed on selector '%s': %w", selector, err)
	}
	return nil
}

func (s *PlaywrightSession) Type(ctx context.Context, selector, text string, keyDelay time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.page.Locator(selector).First().PressSequentially(text, playwright.LocatorPressSequentiallyOptions{
		Delay:   millis(keyDelay),
		Timeout: millis(actionTimeout + time.Duration(len(text))*keyDelay),
	})
	if err != nil {
		return fmt.Errorf("type failed on selector '%s': %w", selector, err)
	}
	return nil
}

func (s *PlaywrightSession) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.page.Locator(selector).First().Click(playwright.LocatorClickOptions{Timeout: millis(actionTimeout)}); err != nil {
		return fmt.Errorf("click failed on selector '%s': %w", selector, err)
	}
	return nil
}

func (s *PlaywrightSession) Location(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.page.URL(), nil
}

func (s *PlaywrightSession) FindAll(ctx context.Context, selector string, match func(text string) bool) ([]Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	locators, err := s.page.Locator(selector).All()
	if err != nil {
		return nil, fmt.Errorf("find elements failed for selector '%s': %w", selector, err)
	}

	var found []Element
	for _, loc := range locators {
		text, err := loc.InnerText(playwright.LocatorInnerTextOptions{Timeout: millis(time.Second)})
		if err != nil {
			// Detached while the list re-rendered.
			continue
		}
		if match(text) {
			found = append(found, &playwrightElement{loc: loc, text: text})
		}
	}
	return found, nil
}

func (s *PlaywrightSession) Screenshot(ctx context.Context, scope string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		buf []byte
		err error
	)
	if scope == "" {
		buf, err = s.page.Screenshot(playwright.PageScreenshotOptions{FullPage: playwright.Bool(true)})
	} else {
		buf, err = s.page.Locator(scope).First().Screenshot()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

func (s *PlaywrightSession) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.page != nil {
			errs = append(errs, s.page.Close())
		}
		if s.context != nil {
			errs = append(errs, s.context.Close())
		}
		if s.browser != nil {
			errs = append(errs, s.browser.Close())
		}
		if s.pw != nil {
			errs = append(errs, s.pw.Stop())
		}
		s.closeErr = errors.Join(errs...)
		s.observer.SessionClosed()
	})
	return s.closeErr
}

type playwrightElement struct {
	loc  playwright.Locator
	text string
}

func (e *playwrightElement) Text() string {
	return e.text
}

func (e *playwrightElement) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.loc.Click(playwright.LocatorClickOptions{Timeout: millis(actionTimeout)}); err != nil {
		return fmt.Errorf("click failed on element %q: %w", e.text, err)
	}
	return nil
}
