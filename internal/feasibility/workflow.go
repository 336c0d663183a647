package feasibility

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"feasibility-bot/internal/browser"
	"feasibility-bot/internal/config"
)

type State string

const (
	StateIdle               State = "Idle"
	StateSessionOpen        State = "SessionOpen"
	StateAuthenticated      State = "Authenticated"
	StateAddressEntered     State = "AddressEntered"
	StateSuggestionResolved State = "SuggestionResolved"
	StateConfirmed          State = "Confirmed"
	StateReported           State = "Reported"
	StateErrored            State = "Errored"
	StateClosed             State = "Closed"
)

// urlPollInterval is how often the page URL is sampled while waiting for the
// post-login redirect.
const urlPollInterval = 250 * time.Millisecond

// failureReportTimeout bounds the failure message and screenshot.
const failureReportTimeout = 15 * time.Second

// Launcher opens a fresh page for one run, reporting to obs.
type Launcher func(ctx context.Context, obs browser.Observer) (browser.Page, error)

// Report describes one finished run.
type Report struct {
	RunID   string
	Address AddressInput
	// Outcome is StateReported or StateErrored.
	Outcome  State
	Err      error
	Trail    []State
	Duration time.Duration
}

func (r *Report) Succeeded() bool {
	return r.Outcome == StateReported
}

// Orchestrator composes the executor, resolver and capture into the
// end-to-end feasibility check. It holds no per-run state, so one instance
// serves concurrent runs.
type Orchestrator struct {
	cfg      config.Config
	launch   Launcher
	logger   *zap.Logger
	executor *Executor
	resolver *Resolver
	capturer *Capturer
}

func NewOrchestrator(cfg config.Config, launch Launcher, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:      cfg,
		launch:   launch,
		logger:   logger,
		executor: NewExecutor(cfg.Timing, logger.Named("executor")),
		resolver: NewResolver(cfg, logger.Named("resolver")),
		capturer: NewCapturer(logger.Named("capture")),
	}
}

// Run performs one independent feasibility check for the raw address input,
// reporting progress and the outcome through m. The browser, when one was
// opened, is closed exactly once before Run returns.
func (o *Orchestrator) Run(ctx context.Context, input string, m Messenger) (report *Report) {
	id := uuid.NewString()
	logger := o.logger.With(zap.String("run_id", id))
	r := &run{
		o:        o,
		id:       id,
		msg:      m,
		logger:   logger,
		observer: browser.NewLogObserver(logger),
		state:    StateIdle,
		trail:    []State{StateIdle},
		started:  time.Now(),
	}

	logger.Info("feasibility check started", zap.String("input", input))

	defer func() {
		r.release()
		report = r.report()
		recordRun(report.Outcome, report.Duration.Seconds())
		logger.Info("feasibility check finished",
			zap.String("outcome", string(report.Outcome)),
			zap.Duration("duration", report.Duration),
			zap.Error(report.Err),
		)
	}()

	if err := r.execute(ctx, input); err != nil {
		r.fail(ctx, err)
	}
	return nil
}

type run struct {
	o        *Orchestrator
	id       string
	msg      Messenger
	logger   *zap.Logger
	observer browser.Observer

	addr     AddressInput
	page     browser.Page
	released bool
	state    State
	outcome  State
	trail    []State
	err      error
	started  time.Time
}

func (r *run) execute(ctx context.Context, input string) error {
	cfg := r.o.cfg

	addr, err := ParseAddress(input)
	if err != nil {
		return err
	}
	r.addr = addr

	if err := cfg.Validate(); err != nil {
		return &ConfigurationError{Err: err}
	}
	loginPage, err := cfg.Portal.LoginMatcher()
	if err != nil {
		return &ConfigurationError{Err: err}
	}

	r.send(ctx, fmt.Sprintf("⏳ Iniciando verificación de factibilidad para %s...", addr))

	page, err := r.o.launch(ctx, r.observer)
	if err != nil {
		return &SessionError{Err: err}
	}
	r.page = page
	r.transition(StateSessionOpen)

	if err := r.authenticate(ctx, loginPage); err != nil {
		return err
	}
	r.transition(StateAuthenticated)

	if err := r.enterAddress(ctx); err != nil {
		return err
	}
	r.transition(StateAddressEntered)

	if err := r.resolveSuggestion(ctx); err != nil {
		return err
	}
	r.transition(StateSuggestionResolved)

	if err := r.o.executor.RunSteps(ctx, r.page, UnitSteps(cfg, r.addr), cfg.Timing.SettleDelay); err != nil {
		return err
	}
	if err := r.o.executor.RunSteps(ctx, r.page, ConfirmationSteps(cfg), cfg.Timing.ConfirmSettleDelay); err != nil {
		return err
	}
	r.transition(StateConfirmed)

	r.reportResult(ctx)
	r.transition(StateReported)
	r.outcome = StateReported
	return nil
}

func (r *run) authenticate(ctx context.Context, loginPage *regexp.Regexp) error {
	cfg := r.o.cfg

	if err := r.page.Navigate(ctx, cfg.Portal.LoginURL, cfg.Timing.NavigationTimeout); err != nil {
		return &NavigationError{URL: cfg.Portal.LoginURL, Err: err}
	}
	if err := r.o.executor.RunSteps(ctx, r.page, LoginSteps(cfg), cfg.Timing.SettleDelay); err != nil {
		return err
	}

	url, err := r.awaitRedirect(ctx, loginPage)
	if err != nil {
		return &NavigationError{URL: cfg.Portal.LoginURL, Err: err}
	}
	if loginPage.MatchString(url) {
		return &AuthenticationError{URL: url}
	}
	r.logger.Info("logged in", zap.String("url", url))
	return nil
}

// awaitRedirect samples the page URL until it leaves the login surface or the
// post-login wait runs out. Not leaving is left for the caller to judge.
func (r *run) awaitRedirect(ctx context.Context, loginPage *regexp.Regexp) (string, error) {
	deadline := time.Now().Add(r.o.cfg.Timing.PostLoginWait)
	for {
		url, err := r.page.Location(ctx)
		if err != nil {
			return "", err
		}
		if !loginPage.MatchString(url) || !time.Now().Before(deadline) {
			return url, nil
		}
		if err := sleepContext(ctx, urlPollInterval); err != nil {
			return "", err
		}
	}
}

func (r *run) enterAddress(ctx context.Context) error {
	cfg := r.o.cfg

	if err := r.page.Navigate(ctx, cfg.Portal.TargetURL, cfg.Timing.NavigationTimeout); err != nil {
		return &NavigationError{URL: cfg.Portal.TargetURL, Err: err}
	}
	return r.o.executor.RunSteps(ctx, r.page, AddressSteps(cfg, r.addr), cfg.Timing.SettleDelay)
}

func (r *run) resolveSuggestion(ctx context.Context) error {
	cfg := r.o.cfg

	el, ok := r.o.resolver.Resolve(ctx, r.page, r.addr.Street)
	if !ok {
		// Not every form offers suggestions for every address.
		r.logger.Warn("no autocomplete suggestion for address, continuing", zap.String("street", r.addr.Street))
		return nil
	}

	if err := el.Click(ctx); err != nil {
		return &StepError{Label: "Sugerencia", Selector: cfg.Selectors.Suggestion, Err: err}
	}
	return sleepContext(ctx, cfg.Timing.SuggestionSettle)
}

// reportResult sends the completion message and the result screenshot,
// scoped to the result panel when it shows up in time.
func (r *run) reportResult(ctx context.Context) {
	cfg := r.o.cfg

	scope := ""
	if sel := cfg.Selectors.Result; sel != "" {
		if err := r.page.WaitVisible(ctx, sel, cfg.Timing.ResultWait); err == nil {
			scope = sel
		} else {
			r.logger.Info("result panel not visible, capturing full page", zap.String("selector", sel))
		}
	}

	r.send(ctx, fmt.Sprintf("✅ Verificación de factibilidad finalizada para %s.", r.addr))

	caption := "Resultado de factibilidad: " + r.addr.String()
	if err := r.o.capturer.CaptureAndReport(ctx, r.page, r.msg, scope, caption); err != nil && scope != "" {
		_ = r.o.capturer.CaptureAndReport(ctx, r.page, r.msg, "", caption)
	}
}

func (r *run) fail(ctx context.Context, err error) {
	phase := r.state
	r.err = err
	r.outcome = StateErrored
	recordPhaseFailure(phase)
	r.observer.Failed(string(phase), err)
	r.transition(StateErrored)

	// The run context may already be cancelled; the user still gets told.
	reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureReportTimeout)
	defer cancel()

	r.send(reportCtx, userMessage(err))

	if r.page != nil {
		caption := fmt.Sprintf("Estado de la página al fallar (%s)", phase)
		_ = r.o.capturer.CaptureAndReport(reportCtx, r.page, r.msg, "", caption)
	}
}

// release closes the page, if any, and moves to Closed. Runs once per run.
func (r *run) release() {
	if r.released {
		return
	}
	r.released = true

	if r.outcome == "" {
		// Unwound by a panic before reaching a terminal state.
		r.outcome = StateErrored
		if r.err == nil {
			r.err = errors.New("feasibility check aborted")
		}
	}

	if r.page != nil {
		if err := r.page.Close(); err != nil {
			r.logger.Warn("closing browser failed", zap.Error(err))
		}
		r.page = nil
	}
	r.transition(StateClosed)
}

func (r *run) transition(to State) {
	r.observer.PhaseChanged(string(r.state), string(to))
	r.state = to
	r.trail = append(r.trail, to)
}

func (r *run) send(ctx context.Context, text string) {
	if err := r.msg.SendText(ctx, text); err != nil {
		r.logger.Warn("sending message failed", zap.Error(err))
	}
}

func (r *run) report() *Report {
	return &Report{
		RunID:    r.id,
		Address:  r.addr,
		Outcome:  r.outcome,
		Err:      r.err,
		Trail:    append([]State(nil), r.trail...),
		Duration: time.Since(r.started),
	}
}

// userMessage renders err for the person who asked for the check.
func userMessage(err error) string {
	var (
		validation *ValidationError
		configErr  *ConfigurationError
		authErr    *AuthenticationError
	)
	switch {
	case errors.As(err, &validation):
		return fmt.Sprintf("⚠️ Error: Por favor, proporciona Región, Comuna, Calle y Número (%s).", err)
	case errors.As(err, &configErr):
		return fmt.Sprintf("⚠️ El bot no está configurado correctamente: %s.", err)
	case errors.As(err, &authErr):
		return fmt.Sprintf("🔐 No se pudo iniciar sesión en el portal: %s. Revisa las credenciales configuradas.", err)
	default:
		return fmt.Sprintf("❌ Error al realizar la verificación: %s. Por favor, intenta de nuevo más tarde.", err)
	}
}
