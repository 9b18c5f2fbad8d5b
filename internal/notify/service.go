package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/restaurant-booking-ai/pkg/logging"
)

// StaffAlert describes a new customer message staff should look at.
type StaffAlert struct {
	RestaurantID string
	CustomerID   string
	CustomerName string
	Phone        string
	Preview      string
	Action       string
	BookingID    string
}

// TokenRemover unregisters a staff device token.
type TokenRemover interface {
	RemoveStaffToken(ctx context.Context, restaurantID, token string) error
}

// StaffNotifier fans an alert out to every registered staff device and the
// configured staff email addresses.
type StaffNotifier struct {
	tokens  *TokenCache
	pusher  Pusher
	remover TokenRemover
	email   EmailSender
	emails  []string
	logger  *logging.Logger
}

// StaffNotifierConfig configures a StaffNotifier. Every channel is optional.
type StaffNotifierConfig struct {
	Tokens  *TokenCache
	Pusher  Pusher
	Remover TokenRemover
	Email   EmailSender
	Emails  []string
}

// NewStaffNotifier creates a staff notifier.
func NewStaffNotifier(cfg StaffNotifierConfig, logger *logging.Logger) *StaffNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	var emails []string
	for _, e := range cfg.Emails {
		if e = strings.TrimSpace(e); e != "" {
			emails = append(emails, e)
		}
	}
	return &StaffNotifier{
		tokens:  cfg.Tokens,
		pusher:  cfg.Pusher,
		remover: cfg.Remover,
		email:   cfg.Email,
		emails:  emails,
		logger:  logger,
	}
}

// NotifyNewMessage sends alert to all staff recipients. Having no recipients
// is not an error. Individual delivery failures are joined into the result.
func (n *StaffNotifier) NotifyNewMessage(ctx context.Context, alert StaffAlert) error {
	if n == nil {
		return nil
	}
	var errs []error
	if err := n.push(ctx, alert); err != nil {
		errs = append(errs, err)
	}
	if err := n.mail(ctx, alert); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (n *StaffNotifier) push(ctx context.Context, alert StaffAlert) error {
	if n.tokens == nil || n.pusher == nil {
		return nil
	}
	tokens, err := n.tokens.Tokens(ctx, alert.RestaurantID)
	if err != nil {
		return fmt.Errorf("notify: list staff tokens: %w", err)
	}
	if len(tokens) == 0 {
		return nil
	}

	msg := PushMessage{
		Title: alertTitle(alert),
		Body:  alert.Preview,
		Data: map[string]string{
			"customer_id": alert.CustomerID,
			"phone":       alert.Phone,
			"action":      alert.Action,
			"booking_id":  alert.BookingID,
		},
	}
	var errs []error
	removed := false
	for _, token := range tokens {
		err := n.pusher.Push(ctx, token, msg)
		if err == nil {
			continue
		}
		if errors.Is(err, ErrTokenUnregistered) && n.remover != nil {
			if rmErr := n.remover.RemoveStaffToken(ctx, alert.RestaurantID, token); rmErr != nil {
				n.logger.Warn("failed to remove unregistered staff token", "restaurant_id", alert.RestaurantID, "error", rmErr)
			} else {
				removed = true
			}
			continue
		}
		errs = append(errs, err)
	}
	if removed {
		n.tokens.Invalidate(alert.RestaurantID)
	}
	return errors.Join(errs...)
}

func (n *StaffNotifier) mail(ctx context.Context, alert StaffAlert) error {
	if n.email == nil || len(n.emails) == 0 {
		return nil
	}
	msg := AlertEmail(alert)

	var errs []error
	for _, to := range n.emails {
		msg.To = to
		if err := n.email.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func alertTitle(alert StaffAlert) string {
	return "New WhatsApp message from " + displayName(alert)
}

func displayName(alert StaffAlert) string {
	if name := strings.TrimSpace(alert.CustomerName); name != "" {
		return name
	}
	return alert.Phone
}
