package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	fcm "google.golang.org/api/fcm/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/wolfman30/restaurant-booking-ai/pkg/logging"
)

// ErrTokenUnregistered means the device token is no longer valid and should be
// removed from the registry.
var ErrTokenUnregistered = errors.New("notify: device token unregistered")

// PushMessage is a staff device notification.
type PushMessage struct {
	Title string
	Body  string
	Data  map[string]string
}

// Pusher delivers a push notification to one device.
type Pusher interface {
	Push(ctx context.Context, token string, msg PushMessage) error
}

// FCMPusher sends notifications through the Firebase Cloud Messaging v1 API.
type FCMPusher struct {
	svc    *fcm.Service
	parent string
	logger *logging.Logger
}

// NewFCMPusher builds an FCM client for projectID. Credentials come from opts
// (option.WithCredentialsFile in production) or application default credentials.
func NewFCMPusher(ctx context.Context, projectID string, logger *logging.Logger, opts ...option.ClientOption) (*FCMPusher, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, errors.New("notify: fcm project id is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	svc, err := fcm.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("notify: create fcm service: %w", err)
	}
	return &FCMPusher{svc: svc, parent: "projects/" + projectID, logger: logger}, nil
}

// Push sends msg to a single device token.
func (p *FCMPusher) Push(ctx context.Context, token string, msg PushMessage) error {
	req := &fcm.SendMessageRequest{
		Message: &fcm.Message{
			Token: token,
			Notification: &fcm.Notification{
				Title: msg.Title,
				Body:  msg.Body,
			},
			Data: msg.Data,
			Android: &fcm.AndroidConfig{
				Priority: "HIGH",
			},
		},
	}
	resp, err := p.svc.Projects.Messages.Send(p.parent, req).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			return fmt.Errorf("%w: %s", ErrTokenUnregistered, apiErr.Message)
		}
		return fmt.Errorf("notify: fcm send: %w", err)
	}
	p.logger.Debug("staff push sent", "message_name", resp.Name)
	return nil
}

var _ Pusher = (*FCMPusher)(nil)
