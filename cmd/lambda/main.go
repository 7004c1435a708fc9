package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/aatwiz/calendar-reminder/internal/app/bootstrap"
	appconfig "github.com/aatwiz/calendar-reminder/internal/config"
	"github.com/aatwiz/calendar-reminder/internal/janitor"
	"github.com/aatwiz/calendar-reminder/internal/reminder"
	"github.com/aatwiz/calendar-reminder/pkg/logging"
)

const (
	taskReminders = "reminders"
	taskCleanup   = "cleanup"
)

// scheduledDetail is the EventBridge rule input. An empty task runs both.
type scheduledDetail struct {
	Task string `json:"task"`
}

type taskResult struct {
	Reminders *reminder.RunResult  `json:"reminders,omitempty"`
	Cleanup   *janitor.SweepResult `json:"cleanup,omitempty"`
}

type invoker struct {
	handler   http.Handler
	scheduler interface {
		RunOnce(ctx context.Context) (reminder.RunResult, error)
	}
	janitor interface {
		Sweep(ctx context.Context) (janitor.SweepResult, error)
	}
	logger *logging.Logger
}

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	app, err := bootstrap.New(context.Background(), cfg, prometheus.DefaultRegisterer, logger)
	if err != nil {
		panic(err)
	}

	inv := &invoker{
		handler:   app.Handler(prometheus.DefaultGatherer),
		scheduler: app.Scheduler,
		janitor:   app.Janitor,
		logger:    logger,
	}
	lambda.Start(inv.invoke)
}

// invoke routes API Gateway HTTP events through the router and treats
// EventBridge events as scheduled jobs.
func (i *invoker) invoke(ctx context.Context, raw json.RawMessage) (any, error) {
	var probe struct {
		DetailType string          `json:"detail-type"`
		Source     string          `json:"source"`
		RawPath    string          `json:"rawPath"`
		Detail     json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("lambda: decode event: %w", err)
	}

	if probe.DetailType != "" || probe.Source == "aws.events" {
		var evt events.CloudWatchEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			return nil, fmt.Errorf("lambda: decode scheduled event: %w", err)
		}
		return i.scheduled(ctx, evt)
	}

	var req events.APIGatewayV2HTTPRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("lambda: decode http event: %w", err)
	}
	return i.serveHTTP(ctx, req)
}

func (i *invoker) scheduled(ctx context.Context, evt events.CloudWatchEvent) (taskResult, error) {
	var detail scheduledDetail
	if len(evt.Detail) > 0 {
		_ = json.Unmarshal(evt.Detail, &detail)
	}
	task := strings.ToLower(strings.TrimSpace(detail.Task))

	var out taskResult
	if task == "" || task == taskReminders {
		res, err := i.scheduler.RunOnce(ctx)
		if err != nil && !errors.Is(err, reminder.ErrRunInProgress) {
			return out, fmt.Errorf("lambda: reminder run: %w", err)
		}
		out.Reminders = &res
		i.logger.Info("scheduled reminder run complete", "sent", res.Sent, "failed", res.Failed, "skipped", res.Skipped)
	}
	if task == "" || task == taskCleanup {
		res, err := i.janitor.Sweep(ctx)
		if err != nil {
			return out, fmt.Errorf("lambda: cleanup: %w", err)
		}
		out.Cleanup = &res
	}
	if out.Reminders == nil && out.Cleanup == nil {
		return out, fmt.Errorf("lambda: unknown task %q", detail.Task)
	}
	return out, nil
}

func (i *invoker) serveHTTP(ctx context.Context, evt events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	method := strings.ToUpper(strings.TrimSpace(evt.RequestContext.HTTP.Method))
	if method == "" {
		method = http.MethodGet
	}
	path := strings.TrimSpace(evt.RawPath)
	if path == "" {
		path = strings.TrimSpace(evt.RequestContext.HTTP.Path)
	}
	if qs := strings.TrimSpace(evt.RawQueryString); qs != "" {
		path += "?" + qs
	}

	body, err := decodeBody(evt)
	if err != nil {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusBadRequest, Body: "invalid body"}, nil
	}

	req, err := http.NewRequestWithContext(ctx, method, path, bytes.NewReader(body))
	if err != nil {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusBadRequest, Body: "invalid request"}, nil
	}
	for k, v := range evt.Headers {
		req.Header.Set(k, v)
	}
	if ip := strings.TrimSpace(evt.RequestContext.HTTP.SourceIP); ip != "" {
		req.RemoteAddr = ip + ":0"
	}

	rec := httptest.NewRecorder()
	i.handler.ServeHTTP(rec, req)

	out := events.APIGatewayV2HTTPResponse{
		StatusCode: rec.Code,
		Body:       rec.Body.String(),
		Headers:    map[string]string{},
	}
	for k := range rec.Header() {
		out.Headers[strings.ToLower(k)] = rec.Header().Get(k)
	}
	return out, nil
}

func decodeBody(evt events.APIGatewayV2HTTPRequest) ([]byte, error) {
	if !evt.IsBase64Encoded {
		return []byte(evt.Body), nil
	}
	return base64.StdEncoding.DecodeString(evt.Body)
}
