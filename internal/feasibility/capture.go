package feasibility

import (
	"context"

	"go.uber.org/zap"

	"feasibility-bot/internal/browser"
)

// Messenger is the outbound side of a messaging front-end.
type Messenger interface {
	SendText(ctx context.Context, text string) error
	SendImage(ctx context.Context, image []byte, caption string) error
}

type Capturer struct {
	logger *zap.Logger
}

func NewCapturer(logger *zap.Logger) *Capturer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Capturer{logger: logger}
}

// CaptureAndReport screenshots scope (the full page when empty) and forwards
// it with caption. Failures are logged and returned as *CaptureError; callers
// must not let them replace the error that triggered the capture.
func (c *Capturer) CaptureAndReport(ctx context.Context, page browser.Page, m Messenger, scope, caption string) error {
	img, err := page.Screenshot(ctx, scope)
	if err != nil {
		c.logger.Warn("screenshot failed", zap.String("scope", scope), zap.Error(err))
		return &CaptureError{Caption: caption, Err: err}
	}

	if err := m.SendImage(ctx, img, caption); err != nil {
		c.logger.Warn("sending screenshot failed", zap.Int("bytes", len(img)), zap.Error(err))
		return &CaptureError{Caption: caption, Err: err}
	}

	c.logger.Debug("screenshot sent", zap.String("scope", scope), zap.Int("bytes", len(img)))
	return nil
}
