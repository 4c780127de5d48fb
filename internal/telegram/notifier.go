// Package telegram sends forum activity to the admins' Telegram chat.
package telegram

import (
	"context"
	"fmt"
	"unicode/utf8"

	"queryforum/backend/internal/config"
	"queryforum/backend/internal/localization"
	"queryforum/backend/internal/logging"
	"queryforum/backend/internal/metrics"
	"queryforum/backend/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const previewLength = 280

// Sender delivers one Telegram message. *tgbotapi.BotAPI satisfies it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// NewBotAPI authorizes against the Bot API.
func NewBotAPI(token string, logger *zap.Logger) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("authorize telegram bot: %w", err)
	}
	bot.Debug = false
	logging.OrNop(logger).Info("Authorized on telegram account", zap.String("username", bot.Self.UserName))
	return bot, nil
}

// Notifier queues admin notifications and sends them from Run, so a slow
// Bot API never holds up a request.
type Notifier struct {
	sender    Sender
	chatID    int64
	localizer *localization.Localizer
	lang      string
	queue     chan tgbotapi.Chattable
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewNotifier creates a notifier for the admin chat chatID.
func NewNotifier(sender Sender, chatID int64, localizer *localization.Localizer, lang string, m *metrics.Metrics, logger *zap.Logger) *Notifier {
	if lang == "" {
		lang = localization.DefaultLanguage
	}
	return &Notifier{
		sender:    sender,
		chatID:    chatID,
		localizer: localizer,
		lang:      lang,
		queue:     make(chan tgbotapi.Chattable, config.NotifierQueueSize),
		metrics:   m,
		logger:    logging.OrNop(logger).Named("telegram"),
	}
}

// ComplaintPosted announces a new complaint. The author is named only when
// the complaint is not anonymous.
func (n *Notifier) ComplaintPosted(view models.ComplaintView) {
	author := n.localizer.GetString(n.lang, "notify.anonymous")
	if !view.IsAnonymous && view.Author != nil {
		author = fmt.Sprintf("%s (%s)", view.Author.Name, view.Author.RegistrationNumber)
	}
	text := n.localizer.Format(n.lang, "notify.complaint_posted",
		view.Category, view.Title, preview(view.Description), author)
	n.enqueue(tgbotapi.NewMessage(n.chatID, text), view.ID)
}

// StatusChanged announces a status update.
func (n *Notifier) StatusChanged(view models.ComplaintView, previous models.ComplaintStatus) {
	text := n.localizer.Format(n.lang, "notify.status_changed",
		view.Title, view.Category, n.statusLabel(previous), n.statusLabel(view.Status))
	n.enqueue(tgbotapi.NewMessage(n.chatID, text), view.ID)
}

func (n *Notifier) statusLabel(s models.ComplaintStatus) string {
	return n.localizer.GetString(n.lang, "status."+string(s))
}

func (n *Notifier) enqueue(msg tgbotapi.Chattable, complaintID string) {
	select {
	case n.queue <- msg:
	default:
		n.metrics.NotificationFailed()
		n.logger.Warn("notification queue full, dropping", zap.String("complaint_id", complaintID))
	}
}

// Run sends queued notifications until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-n.queue:
			if _, err := n.sender.Send(msg); err != nil {
				n.metrics.NotificationFailed()
				n.logger.Error("failed to send notification", zap.Error(err))
			}
		}
	}
}

func preview(s string) string {
	if utf8.RuneCountInString(s) <= previewLength {
		return s
	}
	r := []rune(s)
	return string(r[:previewLength]) + "…"
}
