// Package trigger calls the country configuration's confirmation webhook for
// actions whose outcome an external authority decides.
//
// The response contract: 202 leaves the action pending, any other 2xx accepts
// it and merges the JSON body into the declaration, 4xx rejects it, and
// anything else (including timeouts) leaves it pending for a retry.
package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"registrar/internal/event/models"
	"registrar/pkg/platform/circuit"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 1 << 20
	tracerName     = "registrar/trigger"
)

// Request is the action payload posted to the webhook.
type Request struct {
	EventID     string            `json:"eventId"`
	EventType   string            `json:"eventType"`
	ActionID    string            `json:"actionId"`
	ActionType  models.ActionType `json:"actionType"`
	Declaration models.Fields     `json:"declaration"`
	Annotation  models.Fields     `json:"annotation,omitempty"`
	Data        models.Fields     `json:"data"`
	RequestedBy string            `json:"requestedBy"`
}

// Response is the interpreted webhook answer. Data is only set on acceptance.
type Response struct {
	Outcome    models.ConfirmationOutcome
	StatusCode int
	Data       models.Fields
}

// Client posts confirmation requests to {baseURL}/trigger/events/{eventType}/actions/{ACTION_TYPE}.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	breaker    *circuit.Breaker
	tracer     trace.Tracer
	logger     *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.timeout = d
		}
	}
}

// WithBreaker skips calls while the webhook is failing; skipped calls leave the
// action pending.
func WithBreaker(b *circuit.Breaker) Option {
	return func(cl *Client) {
		cl.breaker = b
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(cl *Client) {
		cl.tracer = t
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) {
		cl.logger = l
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		timeout:    defaultTimeout,
		tracer:     otel.Tracer(tracerName),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Trigger calls the webhook. The returned Response always carries an outcome;
// a non-nil error explains a Rejected or Pending outcome.
func (c *Client) Trigger(ctx context.Context, req Request) (Response, error) {
	actionType := string(req.ActionType)
	ctx, span := c.tracer.Start(ctx, "trigger.call",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("event.id", req.EventID),
			attribute.String("event.type", req.EventType),
			attribute.String("action.type", actionType),
		),
	)
	defer span.End()

	resp, err := c.do(ctx, req)
	span.SetAttributes(
		attribute.String("trigger.outcome", string(resp.Outcome)),
		attribute.Int("http.status_code", resp.StatusCode),
	)
	if err != nil && resp.Outcome != models.OutcomeRejected {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(CategoryOf(err)))
	}
	return resp, err
}

func (c *Client) do(ctx context.Context, req Request) (Response, error) {
	actionType := string(req.ActionType)
	pending := Response{Outcome: models.OutcomePending}

	if c.breaker != nil && !c.breaker.Allow() {
		return pending, newError(CategoryCircuitOpen, actionType, 0, "webhook circuit open", nil)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return pending, newError(CategoryBadData, actionType, 0, "encode request", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/trigger/events/%s/actions/%s",
		c.baseURL, url.PathEscape(req.EventType), url.PathEscape(strings.ToUpper(actionType)))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return pending, newError(CategoryBadData, actionType, 0, "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.recordFailure(actionType)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return pending, newError(CategoryTimeout, actionType, 0, "webhook timed out", err)
		}
		return pending, newError(CategoryOutage, actionType, 0, "webhook unreachable", err)
	}
	defer httpResp.Body.Close()

	status := httpResp.StatusCode
	pending.StatusCode = status
	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	if err != nil {
		c.recordFailure(actionType)
		return pending, newError(CategoryOutage, actionType, status, "read response", err)
	}

	switch {
	case status == http.StatusAccepted:
		c.recordSuccess()
		return pending, nil
	case status >= 200 && status < 300:
		c.recordSuccess()
		data, err := decodeFields(raw)
		if err != nil {
			return pending, newError(CategoryBadData, actionType, status, "decode response body", err)
		}
		return Response{Outcome: models.OutcomeAccepted, StatusCode: status, Data: data}, nil
	case status >= 400 && status < 500:
		c.recordSuccess()
		return Response{Outcome: models.OutcomeRejected, StatusCode: status},
			newError(CategoryRejected, actionType, status, strings.TrimSpace(string(raw)), nil)
	default:
		c.recordFailure(actionType)
		return pending, newError(CategoryOutage, actionType, status, fmt.Sprintf("unexpected status %d", status), nil)
	}
}

// decodeFields accepts an empty body or a JSON object.
func decodeFields(raw []byte) (models.Fields, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return models.Fields{}, nil
	}
	var data models.Fields
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	if data == nil {
		data = models.Fields{}
	}
	return data, nil
}

func (c *Client) recordFailure(actionType string) {
	if c.breaker == nil {
		return
	}
	if _, change := c.breaker.RecordFailure(); change.Opened {
		c.logger.Warn("trigger circuit opened", "breaker", c.breaker.Name(), "action_type", actionType)
	}
}

func (c *Client) recordSuccess() {
	if c.breaker == nil {
		return
	}
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.Info("trigger circuit closed", "breaker", c.breaker.Name())
	}
}
