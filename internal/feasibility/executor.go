package feasibility

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"feasibility-bot/internal/browser"
	"feasibility-bot/internal/config"
)

// Executor runs StepLists against a page. It never retries: later steps
// assume the earlier ones took effect.
type Executor struct {
	logger      *zap.Logger
	stepTimeout time.Duration
	keyDelay    time.Duration
}

func NewExecutor(timing config.Timing, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		logger:      logger,
		stepTimeout: timing.StepTimeout,
		keyDelay:    timing.KeystrokeDelay,
	}
}

// RunSteps executes steps in order, sleeping settle after each one. The
// first step that cannot be completed aborts the list with a *StepError.
func (e *Executor) RunSteps(ctx context.Context, page browser.Page, steps StepList, settle time.Duration) error {
	for i, step := range steps {
		fields := []zap.Field{
			zap.Int("step", i+1),
			zap.Int("total", len(steps)),
			zap.String("label", step.Label),
			zap.String("selector", step.Selector),
			zap.Stringer("action", step.Action.Kind),
		}
		if step.Action.Kind == ActionType {
			value := step.Action.Value
			if step.Secret {
				value = "***"
			}
			fields = append(fields, zap.String("value", value))
		}
		e.logger.Info("executing step", fields...)

		if err := e.runStep(ctx, page, step); err != nil {
			e.logger.Warn("step failed", zap.Int("step", i+1), zap.String("label", step.Label), zap.Error(err))
			return &StepError{Index: i, Label: step.Label, Selector: step.Selector, Err: err}
		}

		if err := sleepContext(ctx, settle); err != nil {
			return &StepError{Index: i, Label: step.Label, Selector: step.Selector, Err: err}
		}
	}
	return nil
}

func (e *Executor) runStep(ctx context.Context, page browser.Page, step Step) error {
	if err := page.WaitVisible(ctx, step.Selector, e.stepTimeout); err != nil {
		return fmt.Errorf("element not visible after %v: %w", e.stepTimeout, err)
	}

	switch step.Action.Kind {
	case ActionType:
		if err := page.Clear(ctx, step.Selector); err != nil {
			return fmt.Errorf("clear field: %w", err)
		}
		if err := page.Type(ctx, step.Selector, step.Action.Value, e.keyDelay); err != nil {
			return fmt.Errorf("type into field: %w", err)
		}
	case ActionClick:
		if err := page.Click(ctx, step.Selector); err != nil {
			return fmt.Errorf("click: %w", err)
		}
	default:
		return fmt.Errorf("unknown action %v", step.Action.Kind)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
