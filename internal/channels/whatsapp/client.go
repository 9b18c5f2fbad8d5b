package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/restaurant-booking-ai/pkg/logging"
)

const (
	defaultGraphAPIBase = "https://graph.facebook.com/v17.0"
	defaultHTTPTimeout  = 10 * time.Second
	maxMediaBytes       = 16 << 20
)

// ErrNotDelivered means the Graph API accepted the request but returned no message id.
var ErrNotDelivered = errors.New("whatsapp: message not accepted")

// Client sends messages and downloads media via the WhatsApp Cloud API.
type Client struct {
	token         string
	phoneNumberID string
	graphAPIBase  string
	httpClient    *http.Client
	logger        *logging.Logger
}

// NewClient creates a Cloud API client for the business phone number.
func NewClient(token, phoneNumberID string, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		token:         token,
		phoneNumberID: phoneNumberID,
		graphAPIBase:  defaultGraphAPIBase,
		httpClient:    &http.Client{Timeout: defaultHTTPTimeout},
		logger:        logger,
	}
}

// SetGraphAPIBase overrides the Graph API base URL (useful for testing).
func (c *Client) SetGraphAPIBase(base string) {
	c.graphAPIBase = strings.TrimRight(base, "/")
}

// SendText sends a plain text message to a customer phone number.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	resp, err := c.SendTextMessage(ctx, to, body)
	if err != nil {
		return err
	}
	c.logger.Debug("whatsapp message accepted", "message_id", resp.Messages[0].ID)
	return nil
}

// SendTextMessage sends a text message and returns the Graph API response.
// A response without a message id is an error.
func (c *Client) SendTextMessage(ctx context.Context, to, body string) (*SendResponse, error) {
	payload, err := json.Marshal(SendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             TextBody{Body: body},
	})
	if err != nil {
		return nil, fmt.Errorf("whatsapp: marshal send request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.graphAPIBase, c.phoneNumberID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("whatsapp: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: send message: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: read response: %w", err)
	}

	var sendResp SendResponse
	if err := json.Unmarshal(respBody, &sendResp); err != nil {
		return nil, fmt.Errorf("whatsapp: unmarshal response (status %d): %w", resp.StatusCode, err)
	}
	if sendResp.Error != nil {
		return &sendResp, fmt.Errorf("whatsapp: API error %d: %s", sendResp.Error.Code, sendResp.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return &sendResp, fmt.Errorf("whatsapp: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	if len(sendResp.Messages) == 0 || sendResp.Messages[0].ID == "" {
		return &sendResp, ErrNotDelivered
	}
	return &sendResp, nil
}

// FetchMedia resolves a media id to its download URL and returns the bytes
// with their MIME type.
func (c *Client) FetchMedia(ctx context.Context, mediaID string) ([]byte, string, error) {
	infoReq, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s", c.graphAPIBase, mediaID), nil)
	if err != nil {
		return nil, "", fmt.Errorf("whatsapp: create media request: %w", err)
	}
	infoReq.Header.Set("Authorization", "Bearer "+c.token)

	infoResp, err := c.httpClient.Do(infoReq)
	if err != nil {
		return nil, "", fmt.Errorf("whatsapp: resolve media: %w", err)
	}
	defer infoResp.Body.Close()

	var info mediaInfo
	if err := json.NewDecoder(infoResp.Body).Decode(&info); err != nil {
		return nil, "", fmt.Errorf("whatsapp: decode media info: %w", err)
	}
	if info.Error != nil {
		return nil, "", fmt.Errorf("whatsapp: media API error %d: %s", info.Error.Code, info.Error.Message)
	}
	if infoResp.StatusCode != http.StatusOK || info.URL == "" {
		return nil, "", fmt.Errorf("whatsapp: media %s not resolvable (status %d)", mediaID, infoResp.StatusCode)
	}

	dlReq, err := http.NewRequestWithContext(ctx, http.MethodGet, info.URL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("whatsapp: create download request: %w", err)
	}
	dlReq.Header.Set("Authorization", "Bearer "+c.token)

	dlResp, err := c.httpClient.Do(dlReq)
	if err != nil {
		return nil, "", fmt.Errorf("whatsapp: download media: %w", err)
	}
	defer dlResp.Body.Close()
	if dlResp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("whatsapp: download media: status %d", dlResp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(dlResp.Body, maxMediaBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("whatsapp: read media: %w", err)
	}
	if len(data) > maxMediaBytes {
		return nil, "", fmt.Errorf("whatsapp: media %s exceeds %d bytes", mediaID, maxMediaBytes)
	}

	mimeType := info.MimeType
	if mimeType == "" {
		mimeType = dlResp.Header.Get("Content-Type")
	}
	return data, mimeType, nil
}
