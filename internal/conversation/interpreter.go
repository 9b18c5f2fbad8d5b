package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/restaurant-booking-ai/pkg/logging"
)

// Input is everything one decision is made from.
type Input struct {
	RestaurantID string
	CustomerID   string
	CustomerName string
	Text         string
	Image        *Image
	Now          time.Time
	Context      DecisionContext
}

// InterpreterConfig configures the Interpreter.
type InterpreterConfig struct {
	Prompt  PromptConfig
	Model   string
	Timeout time.Duration
}

// Interpreter turns a reasoning response into a gated Decision.
type Interpreter struct {
	llm    LLMClient
	cfg    InterpreterConfig
	logger *logging.Logger
}

// NewInterpreter builds an interpreter over llm.
func NewInterpreter(llm LLMClient, cfg InterpreterConfig, logger *logging.Logger) *Interpreter {
	if llm == nil {
		panic("conversation: llm client required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Prompt.Location == nil {
		cfg.Prompt.Location = time.UTC
	}
	return &Interpreter{llm: llm, cfg: cfg, logger: logger}
}

// Interpret calls the reasoning function once and validates its output.
// Transport errors and malformed output both return ErrInterpretationFailed.
func (i *Interpreter) Interpret(ctx context.Context, in Input) (Decision, error) {
	ctx, span := conversationTracer.Start(ctx, "conversation.interpret")
	defer span.End()
	span.SetAttributes(attribute.String("restaurant.customer_id", in.CustomerID))

	system, prompt := buildPrompt(i.cfg.Prompt, in)
	callCtx, cancel := context.WithTimeout(ctx, i.cfg.Timeout)
	defer cancel()

	resp, err := i.llm.Complete(callCtx, LLMRequest{
		Model:  i.cfg.Model,
		System: system,
		Prompt: prompt,
		Image:  in.Image,
		Schema: decisionSchema,
	})
	if err != nil {
		span.RecordError(err)
		i.logger.Error("reasoning call failed", "customer_id", in.CustomerID, "error", err)
		return Decision{}, fmt.Errorf("%w: %w", ErrInterpretationFailed, err)
	}

	decision, err := parseDecision(resp.Text, gateParams{
		CustomerID:   in.CustomerID,
		RestaurantID: in.RestaurantID,
		ServiceType:  i.cfg.Prompt.ServiceType,
		Location:     i.cfg.Prompt.Location,
	})
	if err != nil {
		span.RecordError(err)
		i.logger.Warn("reasoning response rejected",
			"customer_id", in.CustomerID,
			"error", err,
			"response", truncate(resp.Text, 500),
		)
		return Decision{}, err
	}

	mutation := "none"
	if decision.Mutation != nil {
		mutation = decision.Mutation.Kind()
	} else if isConfirmAction(decision.Action) {
		i.logger.Warn("confirmation blocked by gating: required fields missing",
			"customer_id", in.CustomerID,
			"action", decision.Action,
			"table_id", decision.TableID,
			"booking_id", decision.BookingID,
			"party_size", decision.PartySize,
		)
	}
	span.SetAttributes(
		attribute.String("restaurant.action", string(decision.Action)),
		attribute.String("restaurant.mutation", mutation),
	)
	i.logger.Info("decision interpreted",
		"customer_id", in.CustomerID,
		"action", decision.Action,
		"mutation", mutation,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
	)
	return decision, nil
}

func isConfirmAction(a Action) bool {
	return a == ActionConfirmBooking || a == ActionConfirmUpdateBooking || a == ActionConfirmCancelBooking
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
