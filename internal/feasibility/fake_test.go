package feasibility

import (
	"context"
	"errors"
	"sync"
	"time"

	"feasibility-bot/internal/browser"
	"feasibility-bot/internal/config"
)

const (
	testLoginURL  = "https://portal.test/login"
	testTargetURL = "https://portal.test/factibilidad"
	testHomeURL   = "https://portal.test/inicio"
)

var errInjected = errors.New("injected failure")

// fakePage records every primitive as "<op> <target>" and fails the ones
// listed in failOn.
type fakePage struct {
	mu sync.Mutex

	url         string
	afterLogin  string
	submit      string
	calls       []string
	failOn      map[string]error
	suggestions []*fakeElement
	shot        []byte
	shotErr     error
	closed      int
}

func newFakePage() *fakePage {
	return &fakePage{
		afterLogin: testHomeURL,
		submit:     "#btnIngresar",
		failOn:     map[string]error{},
		shot:       []byte("\x89PNG fake"),
	}
}

func (p *fakePage) record(op, target string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	call := op + " " + target
	p.calls = append(p.calls, call)
	return p.failOn[call]
}

func (p *fakePage) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakePage) Navigate(_ context.Context, url string, _ time.Duration) error {
	if err := p.record("navigate", url); err != nil {
		return err
	}
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
	return nil
}

func (p *fakePage) WaitVisible(_ context.Context, selector string, _ time.Duration) error {
	return p.record("wait", selector)
}

func (p *fakePage) Clear(_ context.Context, selector string) error {
	return p.record("clear", selector)
}

func (p *fakePage) Type(_ context.Context, selector, text string, _ time.Duration) error {
	return p.record("type", selector+"="+text)
}

func (p *fakePage) Click(_ context.Context, selector string) error {
	if err := p.record("click", selector); err != nil {
		return err
	}
	p.mu.Lock()
	if selector == p.submit {
		p.url = p.afterLogin
	}
	p.mu.Unlock()
	return nil
}

func (p *fakePage) Location(context.Context) (string, error) {
	if err := p.record("location", ""); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *fakePage) FindAll(_ context.Context, selector string, match func(string) bool) ([]browser.Element, error) {
	if err := p.record("find", selector); err != nil {
		return nil, err
	}
	var out []browser.Element
	for _, s := range p.suggestions {
		if match(s.text) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (p *fakePage) Screenshot(_ context.Context, scope string) ([]byte, error) {
	if err := p.record("screenshot", scope); err != nil {
		return nil, err
	}
	if p.shotErr != nil {
		return nil, p.shotErr
	}
	return p.shot, nil
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

type fakeElement struct {
	page     *fakePage
	text     string
	clickErr error
}

func (e *fakeElement) Text() string { return e.text }

func (e *fakeElement) Click(context.Context) error {
	if e.page != nil {
		_ = e.page.record("pick", e.text)
	}
	return e.clickErr
}

type sentImage struct {
	data    []byte
	caption string
}

type recordingMessenger struct {
	mu      sync.Mutex
	texts   []string
	images  []sentImage
	sendErr error
}

func (m *recordingMessenger) SendText(_ context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, text)
	return m.sendErr
}

func (m *recordingMessenger) SendImage(_ context.Context, image []byte, caption string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.images = append(m.images, sentImage{data: image, caption: caption})
	return nil
}

// ctxCheckingMessenger refuses to deliver on a done context, like the real
// network backed messengers.
type ctxCheckingMessenger struct {
	recordingMessenger
}

func (m *ctxCheckingMessenger) SendText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.recordingMessenger.SendText(ctx, text)
}

func (m *ctxCheckingMessenger) SendImage(ctx context.Context, image []byte, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.recordingMessenger.SendImage(ctx, image, caption)
}

// testConfig returns a complete configuration with every delay at zero.
func testConfig() config.Config {
	cfg := *config.NewConfig()
	cfg.Portal = config.Portal{
		LoginURL:  testLoginURL,
		TargetURL: testTargetURL,
		Username:  "operador",
		Password:  "s3cret",
	}
	cfg.Timing = config.Timing{
		SuggestionPrefix: 8,
		SuggestionPoll:   time.Millisecond,
	}
	return cfg
}

// launcherFor hands out page on every launch and counts the launches.
func launcherFor(page *fakePage, launches *int) Launcher {
	return func(context.Context, browser.Observer) (browser.Page, error) {
		*launches++
		return page, nil
	}
}
