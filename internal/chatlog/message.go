package chatlog

import (
	"errors"
	"sort"
	"strings"
	"time"
)

// Sender identifies who authored a chat message.
type Sender string

const (
	SenderCustomer Sender = "customer"
	SenderStaff    Sender = "staff"
)

// MediaPrefix marks a message body that references stored media.
const MediaPrefix = "media:"

// ErrDuplicateMessage is returned when a message with the same external id was
// already recorded for the customer.
var ErrDuplicateMessage = errors.New("chatlog: duplicate external message id")

// Message is an immutable entry in a customer's conversation thread.
type Message struct {
	ID           string
	RestaurantID string
	CustomerID   string
	Sender       Sender
	Body         string
	ExternalID   string
	Timestamp    time.Time
	// Seq is the insertion order assigned by the store; it breaks timestamp ties.
	Seq int64
}

// IsMedia reports whether the body references stored media.
func (m Message) IsMedia() bool {
	return strings.HasPrefix(m.Body, MediaPrefix)
}

// MediaBody builds a body referencing stored media with an optional caption.
func MediaBody(key, caption string) string {
	body := MediaPrefix + key
	if caption = strings.TrimSpace(caption); caption != "" {
		body += " " + caption
	}
	return body
}

// SortChronological orders messages by timestamp, then insertion order.
func SortChronological(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].Timestamp.Before(msgs[j].Timestamp)
		}
		return msgs[i].Seq < msgs[j].Seq
	})
}

// Recent returns the last n messages after chronological sort.
func Recent(msgs []Message, n int) []Message {
	sorted := make([]Message, len(msgs))
	copy(sorted, msgs)
	SortChronological(sorted)
	if n > 0 && len(sorted) > n {
		sorted = sorted[len(sorted)-n:]
	}
	return sorted
}
