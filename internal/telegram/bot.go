package telegram

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"feasibility-bot/internal/config"
	"feasibility-bot/internal/feasibility"
)

const (
	helpText = "👋 Envíame /factibilidad Región, Comuna, Calle, Número[, Torre, Depto] " +
		"y revisaré la factibilidad técnica de esa dirección.\n" +
		"Ejemplo: /factibilidad Metropolitana, Santiago, Av. Libertad, 100"
	usageText        = "⚠️ Error: Por favor, proporciona Región, Comuna, Calle y Número.\nEjemplo: /factibilidad Metropolitana, Santiago, Av. Libertad, 100"
	busyText         = "⏳ Hay demasiadas verificaciones en curso. Intenta de nuevo en unos minutos."
	unauthorizedText = "⛔ Este chat no está autorizado para usar el bot."
)

// Checker runs one feasibility check and reports through m.
type Checker interface {
	Run(ctx context.Context, input string, m feasibility.Messenger) *feasibility.Report
}

type Bot struct {
	client      *Client
	checker     Checker
	limiter     *feasibility.Limiter
	logger      *zap.Logger
	allowed     map[int64]bool
	pollTimeout time.Duration
	retryDelay  time.Duration

	wg sync.WaitGroup
}

func NewBot(cfg config.Telegram, checker Checker, limiter *feasibility.Limiter, logger *zap.Logger) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	allowed := make(map[int64]bool, len(cfg.AllowedChats))
	for _, id := range cfg.AllowedChats {
		allowed[id] = true
	}
	return &Bot{
		client:      NewClient(cfg.APIBase, cfg.BotToken, cfg.PollTimeout),
		checker:     checker,
		limiter:     limiter,
		logger:      logger.Named("telegram"),
		allowed:     allowed,
		pollTimeout: cfg.PollTimeout,
		retryDelay:  5 * time.Second,
	}
}

// Run polls for updates until ctx is cancelled, then waits for the checks it
// started.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("bot started", zap.Int("allowed_chats", len(b.allowed)))
	defer b.wg.Wait()

	var offset int64
	for {
		if ctx.Err() != nil {
			b.logger.Info("bot stopping")
			return nil
		}

		updates, err := b.client.GetUpdates(ctx, offset, b.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			b.logger.Warn("getUpdates failed", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(b.retryDelay):
			}
			continue
		}

		for _, u := range updates {
			offset = u.UpdateID + 1
			if u.Message != nil && u.Message.Text != "" {
				b.handle(ctx, u.Message)
			}
		}
	}
}

// Wait blocks until every check started by the bot has finished.
func (b *Bot) Wait() {
	b.wg.Wait()
}

func (b *Bot) handle(ctx context.Context, msg *Message) {
	command, args := parseCommand(msg.Text)
	if command == "" {
		return
	}

	chatID := msg.Chat.ID
	logger := b.logger.With(zap.Int64("chat_id", chatID), zap.String("command", command))
	reply := func(text string) {
		if err := b.client.SendMessage(ctx, chatID, text); err != nil {
			logger.Warn("reply failed", zap.Error(err))
		}
	}

	if len(b.allowed) > 0 && !b.allowed[chatID] {
		logger.Warn("chat not allowed")
		reply(unauthorizedText)
		return
	}

	switch command {
	case "start", "help":
		reply(helpText)
	case "factibilidad", "check":
		if args == "" {
			reply(usageText)
			return
		}
		if !b.limiter.TryAcquire() {
			logger.Info("check rejected, limiter full", zap.Int64("active", b.limiter.Active()))
			reply(busyText)
			return
		}

		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			defer b.limiter.Release()

			report := b.checker.Run(ctx, args, &chatMessenger{client: b.client, chatID: chatID})
			logger.Info("check done",
				zap.String("run_id", report.RunID),
				zap.String("outcome", string(report.Outcome)),
			)
		}()
	default:
		logger.Debug("ignoring unknown command")
	}
}

// parseCommand splits "/cmd@bot rest" into "cmd" and "rest". Text that is not
// a command yields an empty command.
func parseCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}

	head, rest, _ := strings.Cut(text, " ")
	head = strings.TrimPrefix(head, "/")
	if at := strings.IndexByte(head, '@'); at >= 0 {
		head = head[:at]
	}
	return strings.ToLower(head), strings.TrimSpace(rest)
}

// chatMessenger relays a check's output to one chat.
type chatMessenger struct {
	client *Client
	chatID int64
}

func (m *chatMessenger) SendText(ctx context.Context, text string) error {
	return m.client.SendMessage(ctx, m.chatID, text)
}

func (m *chatMessenger) SendImage(ctx context.Context, image []byte, caption string) error {
	return m.client.SendPhoto(ctx, m.chatID, image, caption)
}
