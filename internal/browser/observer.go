package browser

import (
	"go.uber.org/zap"
)

// Observer receives lifecycle and page diagnostics for one session.
type Observer interface {
	SessionOpened(driver string)
	PhaseChanged(from, to string)
	PageEvent(kind, message string)
	Failed(phase string, err error)
	SessionClosed()
}

type NopObserver struct{}

func (NopObserver) SessionOpened(string)        {}
func (NopObserver) PhaseChanged(string, string) {}
func (NopObserver) PageEvent(string, string)    {}
func (NopObserver) Failed(string, error)        {}
func (NopObserver) SessionClosed()              {}

// LogObserver writes every event as a structured log entry.
type LogObserver struct {
	logger *zap.Logger
}

func NewLogObserver(logger *zap.Logger) *LogObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogObserver{logger: logger.Named("browser")}
}

func (o *LogObserver) SessionOpened(driver string) {
	o.logger.Info("session opened", zap.String("driver", driver))
}

func (o *LogObserver) PhaseChanged(from, to string) {
	o.logger.Info("phase changed", zap.String("from", from), zap.String("to", to))
}

func (o *LogObserver) PageEvent(kind, message string) {
	o.logger.Debug("page event", zap.String("kind", kind), zap.String("message", message))
}

func (o *LogObserver) Failed(phase string, err error) {
	o.logger.Warn("phase failed", zap.String("phase", phase), zap.Error(err))
}

func (o *LogObserver) SessionClosed() {
	o.logger.Info("session closed")
}
