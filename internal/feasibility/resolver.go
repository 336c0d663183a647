package feasibility

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"feasibility-bot/internal/browser"
	"feasibility-bot/internal/config"
	"feasibility-bot/internal/textnorm"
)

// Resolver picks an autocomplete entry whose text contains a short
// normalized prefix of the query.
type Resolver struct {
	logger       *zap.Logger
	itemSelector string
	prefixLen    int
	wait         time.Duration
	poll         time.Duration
}

func NewResolver(cfg config.Config, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	poll := cfg.Timing.SuggestionPoll
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	return &Resolver{
		logger:       logger,
		itemSelector: cfg.Selectors.Suggestion,
		prefixLen:    cfg.Timing.SuggestionPrefix,
		wait:         cfg.Timing.SuggestionWait,
		poll:         poll,
	}
}

// Resolve returns the first rendered suggestion, in document order, that
// matches the query prefix. Suggestions appear after a debounce, so the list
// is polled until the wait bound; no match is not an error.
func (r *Resolver) Resolve(ctx context.Context, page browser.Page, query string) (browser.Element, bool) {
	prefix := textnorm.Prefix(query, r.prefixLen)
	if prefix == "" {
		return nil, false
	}

	match := func(text string) bool {
		return strings.Contains(textnorm.Normalize(text), prefix)
	}

	deadline := time.Now().Add(r.wait)
	for attempt := 1; ; attempt++ {
		found, err := page.FindAll(ctx, r.itemSelector, match)
		if err != nil {
			r.logger.Debug("suggestion lookup failed", zap.Int("attempt", attempt), zap.Error(err))
		} else if len(found) > 0 {
			r.logger.Info("suggestion matched",
				zap.String("prefix", prefix),
				zap.String("text", strings.TrimSpace(found[0].Text())),
				zap.Int("candidates", len(found)),
			)
			return found[0], true
		}

		if !time.Now().Before(deadline) {
			break
		}
		if sleepContext(ctx, r.poll) != nil {
			break
		}
	}

	r.logger.Info("no suggestion matched", zap.String("prefix", prefix), zap.Duration("waited", r.wait))
	return nil, false
}
