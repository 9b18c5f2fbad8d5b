package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/wolfman30/restaurant-booking-ai/cmd/mainconfig"
	"github.com/wolfman30/restaurant-booking-ai/internal/channels/whatsapp"
	appconfig "github.com/wolfman30/restaurant-booking-ai/internal/config"
	"github.com/wolfman30/restaurant-booking-ai/internal/observability/metrics"
	"github.com/wolfman30/restaurant-booking-ai/internal/worker"
	"github.com/wolfman30/restaurant-booking-ai/pkg/logging"
)

const webhookPath = "/webhooks/whatsapp"

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if strings.TrimSpace(cfg.EventQueueURL) == "" {
		panic(errors.New("EVENT_QUEUE_URL is required"))
	}
	awsCfg, err := mainconfig.LoadAWSConfig(context.Background(), cfg)
	if err != nil {
		panic(err)
	}

	queue := worker.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.EventQueueURL)
	publisher := worker.NewPublisher(queue, logger.Component("publisher"))
	webhook := whatsapp.NewWebhookHandler(whatsapp.WebhookConfig{
		VerifyToken:  cfg.VerifyToken,
		AppSecret:    cfg.WhatsAppAppSecret,
		RestaurantID: cfg.RestaurantID,
	}, publisher, metrics.NewPipelineMetrics(nil), logger.Component("webhook"))

	lambda.Start(func(ctx context.Context, evt events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		return handle(ctx, webhook, evt)
	})
}

// handle adapts an API Gateway HTTP event onto the webhook handler. Accepted
// events are only enqueued here; the event worker runs the pipeline.
func handle(ctx context.Context, webhook *whatsapp.WebhookHandler, evt events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	method := strings.ToUpper(strings.TrimSpace(evt.RequestContext.HTTP.Method))
	path := strings.TrimSpace(evt.RawPath)
	if path == "" {
		path = strings.TrimSpace(evt.RequestContext.HTTP.Path)
	}

	if path == "/health" || path == "/_health" {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusOK, Body: "ok"}, nil
	}
	if path != webhookPath {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusNotFound}, nil
	}

	var serve http.HandlerFunc
	switch method {
	case http.MethodGet:
		serve = webhook.HandleVerification
	case http.MethodPost:
		serve = webhook.HandleInbound
	default:
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusMethodNotAllowed}, nil
	}

	body, err := decodeBody(evt)
	if err != nil {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusBadRequest, Body: "invalid body"}, nil
	}

	target := path
	if qs := strings.TrimSpace(evt.RawQueryString); qs != "" {
		target += "?" + qs
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusBadRequest}, nil
	}
	for k, v := range evt.Headers {
		req.Header.Set(k, v)
	}

	rw := newBufferedResponse()
	serve(rw, req)
	return rw.toEvent(), nil
}

func decodeBody(evt events.APIGatewayV2HTTPRequest) ([]byte, error) {
	if !evt.IsBase64Encoded {
		return []byte(evt.Body), nil
	}
	decoded, err := base64.StdEncoding.DecodeString(evt.Body)
	if err != nil {
		return nil, err
	}
	return decoded, nil
}

// bufferedResponse collects what a handler writes so it can be returned as a
// single Lambda response.
type bufferedResponse struct {
	header http.Header
	body   bytes.Buffer
	status int
}

func newBufferedResponse() *bufferedResponse {
	return &bufferedResponse{header: http.Header{}}
}

func (b *bufferedResponse) Header() http.Header { return b.header }

func (b *bufferedResponse) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}

func (b *bufferedResponse) WriteHeader(status int) {
	if b.status == 0 {
		b.status = status
	}
}

func (b *bufferedResponse) toEvent() events.APIGatewayV2HTTPResponse {
	status := b.status
	if status == 0 {
		status = http.StatusOK
	}
	out := events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Body:       b.body.String(),
		Headers:    map[string]string{},
	}
	if ct := b.header.Get("Content-Type"); ct != "" {
		out.Headers["content-type"] = ct
	}
	return out
}
