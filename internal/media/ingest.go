package media

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/restaurant-booking-ai/pkg/logging"
)

// MaxImageBytes is the largest image forwarded to the reasoning call.
const MaxImageBytes = 5 << 20

var (
	ErrUnsupportedMedia = errors.New("media: unsupported media type")
	ErrMediaTooLarge    = errors.New("media: media exceeds size limit")
)

// Fetcher downloads media bytes from the messaging channel.
type Fetcher interface {
	FetchMedia(ctx context.Context, mediaID string) ([]byte, string, error)
}

// Object is an ingested media item.
type Object struct {
	Key      string
	MIMEType string
	Data     []byte
}

// Ingestor pulls inbound media from the channel and archives it.
type Ingestor struct {
	fetcher Fetcher
	store   *Store
	now     func() time.Time
	logger  *logging.Logger
}

// NewIngestor builds an Ingestor. store may be disabled; the bytes are still
// returned so the image can be reasoned about.
func NewIngestor(fetcher Fetcher, store *Store, logger *logging.Logger) *Ingestor {
	if fetcher == nil {
		panic("media: fetcher required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Ingestor{fetcher: fetcher, store: store, now: time.Now, logger: logger}
}

// Ingest fetches mediaID and stores it under a restaurant-scoped key.
func (i *Ingestor) Ingest(ctx context.Context, restaurantID, mediaID string) (Object, error) {
	data, mimeType, err := i.fetcher.FetchMedia(ctx, mediaID)
	if err != nil {
		return Object{}, fmt.Errorf("media: fetch %s: %w", mediaID, err)
	}
	mimeType = strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
	if !strings.HasPrefix(mimeType, "image/") {
		return Object{}, fmt.Errorf("%w: %s", ErrUnsupportedMedia, mimeType)
	}
	if len(data) > MaxImageBytes {
		return Object{}, fmt.Errorf("%w: %d bytes", ErrMediaTooLarge, len(data))
	}

	obj := Object{Key: "whatsapp/" + mediaID, MIMEType: mimeType, Data: data}
	if i.store.Enabled() {
		day := i.now().UTC().Format("2006/01/02")
		obj.Key = fmt.Sprintf("media/%s/%s/%s%s", restaurantID, day, mediaID, extension(mimeType))
		if err := i.store.Put(ctx, obj.Key, mimeType, data); err != nil {
			// The image is still usable for this event.
			i.logger.Warn("media archive failed", "media_id", mediaID, "error", err)
			obj.Key = "whatsapp/" + mediaID
		}
	}
	return obj, nil
}

func extension(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ""
	}
}
