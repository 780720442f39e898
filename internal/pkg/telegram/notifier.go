package telegram

import (
	"context"
	"fmt"
	"html"
	"time"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"

	"payportal/internal/models"
	"payportal/internal/pkg/utils"
)

// Sender is the part of telebot the notifier needs.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Notifier posts payment reports to an ops chat.
type Notifier struct {
	sender Sender
	chat   tele.ChatID
	logger *zap.Logger
}

// NewNotifier builds a report notifier. It returns nil, nil when token or
// chat is not configured; callers treat a nil notifier as disabled.
func NewNotifier(token string, chatID int64, logger *zap.Logger) (*Notifier, error) {
	if token == "" || chatID == 0 {
		return nil, nil
	}
	// Offline skips getMe, so a Telegram outage cannot block startup.
	tb, err := tele.NewBot(tele.Settings{
		Token:   token,
		Offline: true,
		OnError: func(err error, _ tele.Context) {
			logger.Warn("telebot error", zap.Error(err))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telebot: %w", err)
	}
	return NewNotifierWith(tb, chatID, logger), nil
}

// NewNotifierWith builds a notifier around an existing sender.
func NewNotifierWith(sender Sender, chatID int64, logger *zap.Logger) *Notifier {
	return &Notifier{sender: sender, chat: tele.ChatID(chatID), logger: logger}
}

// PaymentSucceeded reports a settled payment. Delivery is best effort and
// never blocks the caller.
func (n *Notifier) PaymentSucceeded(_ context.Context, tx *models.PaymentTransaction) {
	if n == nil || tx == nil {
		return
	}
	text := FormatPaymentReport(tx, time.Now())
	documentNo := tx.LsDocumentNo
	go func() {
		defer func() {
			if r := recover(); r != nil {
				n.logger.Error("Payment report panicked", zap.Any("error", r))
			}
		}()
		if _, err := n.sender.Send(n.chat, text, tele.ModeHTML); err != nil {
			n.logger.Warn("Failed to send payment report",
				zap.String("document_no", documentNo),
				zap.Error(err),
			)
		}
	}()
}

// FormatPaymentReport renders the HTML report for a settled payment.
func FormatPaymentReport(tx *models.PaymentTransaction, now time.Time) string {
	terminal := tx.TerminalID
	if terminal == "" {
		terminal = "-"
	}
	return fmt.Sprintf(
		"💵 <b>Payment received</b>\n\nDocument: <code>%s</code>\nPortal: %s\nOrder: <code>%s</code>\nAmount: %s\nTerminal: %s\nProvider txn: %s\nTime: %s",
		html.EscapeString(tx.LsDocumentNo),
		html.EscapeString(tx.PayPortalName),
		html.EscapeString(tx.PayPortalOrder),
		html.EscapeString(utils.FormatAmount(tx.Amount)),
		html.EscapeString(terminal),
		html.EscapeString(tx.ProviderTransID),
		now.Format("2006-01-02 15:04:05"),
	)
}
