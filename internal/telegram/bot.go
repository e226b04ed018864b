// Package telegram pushes insights to a Telegram chat and lets the chat
// log messages and request insights on demand.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/insightflow/internal/analysis"
	"github.com/user/insightflow/internal/engine"
	"github.com/user/insightflow/internal/types"
)

const (
	maxTelegramMessage = 4096
	defaultWindow      = "1h"
	source             = "telegram"
)

// Engine is the part of the insight client the bot drives.
type Engine interface {
	LogChat(ctx context.Context, source, content string, opts ...engine.EventOption) (types.EventID, error)
	GetInsight(ctx context.Context, window string, opts ...engine.InsightOption) (*types.Insight, error)
	GetStatistics(ctx context.Context, window string) (*types.Aggregate, error)
}

// Bot delivers insights to one chat and serves commands from it.
type Bot struct {
	api    *tgbotapi.BotAPI
	chatID int64
	engine Engine
}

// New creates a bot for the given token. chatID is the chat insights are
// pushed to; commands are only answered in that chat.
func New(token string, chatID int64, eng Engine) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return newBot(api, chatID, eng), nil
}

func newBot(api *tgbotapi.BotAPI, chatID int64, eng Engine) *Bot {
	return &Bot{api: api, chatID: chatID, engine: eng}
}

// Notify sends an insight to the configured chat. Insights computed over an
// empty window are not worth a message and are dropped. It has the
// delivery.Handler signature.
func (b *Bot) Notify(ctx context.Context, insight *types.Insight) error {
	if insight.SourceEventsCount == 0 {
		return nil
	}
	return b.send(b.chatID, FormatInsight(insight))
}

// Start long-polls for updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case update := <-updates:
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			b.handleMessage(ctx, update.Message)
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil || msg.Chat.ID != b.chatID {
		slog.Debug("ignoring message from unknown chat", "chat_id", chatIDOf(msg))
		return
	}
	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	meta := map[string]any{"chat_id": strconv.FormatInt(msg.Chat.ID, 10)}
	if msg.From != nil {
		meta["user_id"] = strconv.FormatInt(msg.From.ID, 10)
		meta["username"] = msg.From.UserName
	}
	if _, err := b.engine.LogChat(ctx, source, msg.Text, engine.WithTags(source), engine.WithMetadata(meta)); err != nil {
		slog.Warn("log telegram message failed", "error", err)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	window := strings.TrimSpace(msg.CommandArguments())
	if window == "" {
		window = defaultWindow
	}

	switch msg.Command() {
	case "start", "help":
		b.reply(chatID, "Messages you send here are logged as chat events.\n"+
			"Commands: /insight [window], /stats [window]")

	case "insight":
		insight, err := b.engine.GetInsight(ctx, window, engine.WithoutSave())
		if err != nil {
			b.reply(chatID, commandError("insight", err))
			return
		}
		b.reply(chatID, FormatInsight(insight))

	case "stats":
		agg, err := b.engine.GetStatistics(ctx, window)
		if err != nil {
			b.reply(chatID, commandError("stats", err))
			return
		}
		b.reply(chatID, FormatStatistics(window, agg))

	default:
		b.reply(chatID, "Unknown command. Available: /insight, /stats, /help")
	}
}

func commandError(cmd string, err error) string {
	slog.Warn("telegram command failed", "command", cmd, "error", err)
	var uw *analysis.UnknownWindowError
	if errors.As(err, &uw) {
		return err.Error()
	}
	return "Error running /" + cmd + "."
}

func (b *Bot) reply(chatID int64, text string) {
	if err := b.send(chatID, text); err != nil {
		slog.Warn("telegram reply failed", "chat_id", chatID, "error", err)
	}
}

// send delivers text in 4096-byte parts, retrying each part without
// Markdown when Telegram rejects the formatting.
func (b *Bot) send(chatID int64, text string) error {
	for _, part := range splitMessage(text) {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if _, err := b.api.Send(msg); err != nil {
			msg.ParseMode = ""
			if _, err := b.api.Send(msg); err != nil {
				return fmt.Errorf("send telegram message: %w", err)
			}
		}
	}
	return nil
}

// FormatInsight renders an insight as a Markdown message.
func FormatInsight(in *types.Insight) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*Insight (%s)*\n%s\n", in.TimeWindow, in.Summary)
	writeList(&sb, "Patterns", in.Patterns)
	writeList(&sb, "Recommendations", in.Recommendations)
	fmt.Fprintf(&sb, "\n_confidence %.2f (%s), %d events_",
		in.Confidence, analysis.ConfidenceLabel(in.Confidence), in.SourceEventsCount)
	return sb.String()
}

func writeList(sb *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(sb, "\n*%s*\n", title)
	for _, it := range items {
		fmt.Fprintf(sb, "- %s\n", it)
	}
}

// FormatStatistics renders grouped counts as a plain message.
func FormatStatistics(window string, agg *types.Aggregate) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Last %s: %d events\n", window, agg.Total)
	writeCounts(&sb, "By type", agg.ByType)
	writeCounts(&sb, "By source", agg.BySource)
	return strings.TrimRight(sb.String(), "\n")
}

func writeCounts(sb *strings.Builder, title string, counts map[string]int64) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(sb, "%s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(sb, "  %s: %d\n", k, counts[k])
	}
}

func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		end := min(maxTelegramMessage, len(text))
		parts = append(parts, text[:end])
		text = text[end:]
	}
	return parts
}

func chatIDOf(msg *tgbotapi.Message) int64 {
	if msg.Chat == nil {
		return 0
	}
	return msg.Chat.ID
}
