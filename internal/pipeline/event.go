package pipeline

import (
	"strings"
	"time"
)

// MessageType classifies an inbound event.
type MessageType string

const (
	MessageText        MessageType = "text"
	MessageImage       MessageType = "image"
	MessageUnsupported MessageType = "unsupported"
)

// Event is one inbound customer message, already normalised by the channel.
type Event struct {
	RestaurantID string      `json:"restaurant_id"`
	Phone        string      `json:"phone"`
	DisplayName  string      `json:"display_name,omitempty"`
	Type         MessageType `json:"type"`
	Text         string      `json:"text,omitempty"`
	MediaID      string      `json:"media_id,omitempty"`
	MediaMIME    string      `json:"media_mime,omitempty"`
	Caption      string      `json:"caption,omitempty"`
	// RawType is the channel's own type name, kept for unsupported events.
	RawType    string    `json:"raw_type,omitempty"`
	ExternalID string    `json:"external_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Validate reports whether the event carries enough to be processed.
func (e Event) Validate() error {
	switch {
	case strings.TrimSpace(e.RestaurantID) == "":
		return errEvent("restaurant id required")
	case strings.TrimSpace(e.Phone) == "":
		return errEvent("phone required")
	}
	switch e.Type {
	case MessageText:
		if strings.TrimSpace(e.Text) == "" {
			return errEvent("text body required")
		}
	case MessageImage:
		if strings.TrimSpace(e.MediaID) == "" {
			return errEvent("media id required")
		}
	case MessageUnsupported:
	default:
		return errEvent("unknown message type " + string(e.Type))
	}
	return nil
}

// Preview is a short human-readable summary of the event body.
func (e Event) Preview() string {
	switch e.Type {
	case MessageImage:
		if c := strings.TrimSpace(e.Caption); c != "" {
			return "[image] " + c
		}
		return "[image]"
	case MessageUnsupported:
		return "[" + e.RawType + "]"
	default:
		return e.Text
	}
}
