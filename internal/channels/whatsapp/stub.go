package whatsapp

import (
	"context"
	"sync"

	"github.com/wolfman30/restaurant-booking-ai/pkg/logging"
)

// StubSender logs outbound messages instead of calling the Graph API. Local
// runs without WhatsApp credentials use it.
type StubSender struct {
	mu     sync.Mutex
	sent   []SentText
	logger *logging.Logger
}

// SentText is one message captured by StubSender.
type SentText struct {
	To   string
	Body string
}

// NewStubSender creates a stub sender.
func NewStubSender(logger *logging.Logger) *StubSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubSender{logger: logger}
}

// SendText records the message.
func (s *StubSender) SendText(_ context.Context, to, body string) error {
	s.mu.Lock()
	s.sent = append(s.sent, SentText{To: to, Body: body})
	s.mu.Unlock()
	s.logger.Info("stub whatsapp send", "to", to, "body_length", len(body))
	return nil
}

// Sent returns a copy of the captured messages.
func (s *StubSender) Sent() []SentText {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SentText, len(s.sent))
	copy(out, s.sent)
	return out
}
