// Package telegram delivers engine notifications over Telegram. Members
// optionally carry a chat binding; users without one are silently skipped.
package telegram

import (
	"context"
	"fmt"

	"tanda_circle_engine/internal/domain/notify"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// ChatResolver maps an engine user id to a Telegram chat id, if the user
// has one bound.
type ChatResolver interface {
	LookupChatID(ctx context.Context, userID string) (int64, bool, error)
}

// Notifier implements notify.Notifier over gopkg.in/telebot.v3.
type Notifier struct {
	bot      *telebot.Bot
	resolver ChatResolver
	logger   *logrus.Logger
}

func NewNotifier(bot *telebot.Bot, resolver ChatResolver, logger *logrus.Logger) *Notifier {
	return &Notifier{bot: bot, resolver: resolver, logger: logger}
}

func (n *Notifier) Notify(ctx context.Context, userID string, event notify.EventType, payload map[string]string) error {
	chatID, ok, err := n.resolver.LookupChatID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to resolve chat for user %s: %w", userID, err)
	}
	if !ok {
		n.logger.WithField("user_id", userID).Debug("no telegram binding for user, skipping notification")
		return nil
	}
	text := renderMessage(event, payload)
	if _, err := n.bot.Send(&telebot.User{ID: chatID}, text, &telebot.SendOptions{}); err != nil {
		return fmt.Errorf("failed to send telegram notification: %w", err)
	}
	return nil
}

func renderMessage(event notify.EventType, payload map[string]string) string {
	circleName := payload["circle"]
	switch event {
	case notify.EventContributionReceived:
		return fmt.Sprintf("Your contribution of %s to %s (round %s) was received on time. Thank you!", payload["amount"], circleName, payload["cycle"])
	case notify.EventLateContribution:
		return fmt.Sprintf("Your contribution of %s to %s (round %s) was received after the deadline. Late contributions affect your XnScore.", payload["amount"], circleName, payload["cycle"])
	case notify.EventDefaultWarning:
		return fmt.Sprintf("You missed the contribution window for round %s of %s. This default has been recorded against your XnScore. Please contact your circle admin.", payload["cycle"], circleName)
	case notify.EventCycleDefaulted:
		return fmt.Sprintf("Round %s of %s could not be fully funded and has defaulted. The circle admin will follow up on collected funds.", payload["cycle"], circleName)
	case notify.EventPayoutSent:
		return fmt.Sprintf("Congratulations! The pot of %s for round %s of %s is on its way to you.", payload["amount"], payload["cycle"], circleName)
	case notify.EventCircleClosed:
		return fmt.Sprintf("Circle %s has been closed (%s).", circleName, payload["reason"])
	}
	return fmt.Sprintf("Update from circle %s: %s", circleName, event)
}

// LogNotifier is the delivery backend used when no Telegram token is
// configured: it logs the notification and succeeds.
type LogNotifier struct {
	logger *logrus.Logger
}

func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, userID string, event notify.EventType, payload map[string]string) error {
	n.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"event":   event,
		"payload": payload,
	}).Info("notification (log delivery)")
	return nil
}
