package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"shop-sync-service/internal/models"
	"shop-sync-service/internal/util"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxResponseSize limits the body read from API_CALL and WEBHOOK_TRIGGER targets
const maxResponseSize = 5 * 1024 * 1024

// Result is the structured outcome of one job execution
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`

	// Err is the original failure; Stack is set when the handler panicked
	Err   error  `json:"-"`
	Stack string `json:"-"`
}

func success(data any) *Result {
	return &Result{Success: true, Data: data}
}

func failure(err error) *Result {
	return &Result{Success: false, Error: err.Error(), Err: err}
}

// JobLogWriter appends audit lines of an execution
type JobLogWriter interface {
	AppendJobLog(ctx context.Context, log *models.JobLog) error
}

// CollectionStore runs one declarative store operation on a named entity collection
type CollectionStore interface {
	ExecuteCollection(ctx context.Context, model, operation string, data, where map[string]any) (any, error)
}

// Executor dispatches a job to the handler of its type
type Executor struct {
	functions      *FunctionRegistry
	collections    CollectionStore
	logs           JobLogWriter
	httpClient     *http.Client
	defaultTimeout time.Duration
	validate       *validator.Validate
	logger         *zap.Logger
}

// NewExecutor creates a new job executor
func NewExecutor(functions *FunctionRegistry, collections CollectionStore, logs JobLogWriter, defaultTimeout time.Duration) *Executor {
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}
	return &Executor{
		functions:      functions,
		collections:    collections,
		logs:           logs,
		httpClient:     &http.Client{},
		defaultTimeout: defaultTimeout,
		validate:       validator.New(),
		logger:         util.GetLogger(),
	}
}

// Execute runs a job and never panics; every failure is returned as a failed Result
func (e *Executor) Execute(ctx context.Context, job *models.Job, executionID string) (result *Result) {
	ctx, span := util.StartSpan(ctx, "Executor.Execute")
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("job handler panicked: %v", r)
			result = failure(err)
			result.Stack = string(debug.Stack())
			e.logger.Error("Job handler panicked",
				zap.String("job_id", job.ID),
				zap.Any("panic", r))
		}
	}()

	switch job.Type {
	case models.JobTypeFunctionCall:
		var cfg models.FunctionCallConfig
		if err := e.parseConfig(job, &cfg); err != nil {
			return failure(err)
		}
		return e.callFunction(ctx, job, executionID, &cfg)

	case models.JobTypeAPICall:
		var cfg models.APICallConfig
		if err := e.parseConfig(job, &cfg); err != nil {
			return failure(err)
		}
		return e.callAPI(ctx, &cfg)

	case models.JobTypeDatabaseQuery:
		var cfg models.DatabaseQueryConfig
		if err := e.parseConfig(job, &cfg); err != nil {
			return failure(err)
		}
		return e.runQuery(ctx, &cfg)

	case models.JobTypeWebhookTrigger:
		var cfg models.WebhookTriggerConfig
		if err := e.parseConfig(job, &cfg); err != nil {
			return failure(err)
		}
		return e.triggerWebhook(ctx, &cfg)

	default:
		return failure(fmt.Errorf("%w: %s", ErrUnknownJobType, job.Type))
	}
}

func (e *Executor) parseConfig(job *models.Job, out any) error {
	return decodeConfig(e.validate, job.Config, out)
}

func (e *Executor) callFunction(ctx context.Context, job *models.Job, executionID string, cfg *models.FunctionCallConfig) *Result {
	handler, err := e.functions.Lookup(cfg.FunctionName)
	if err != nil {
		return failure(err)
	}

	e.appendLog(ctx, job.ID, executionID, fmt.Sprintf("Calling function %s", cfg.FunctionName))
	data, err := handler(ctx, cfg.Params)
	if err != nil {
		return &Result{Success: false, Data: data, Error: err.Error(), Err: err}
	}
	e.appendLog(ctx, job.ID, executionID, fmt.Sprintf("Function %s completed", cfg.FunctionName))

	return success(data)
}

func (e *Executor) appendLog(ctx context.Context, jobID, executionID, message string) {
	e.logger.Info(message, zap.String("job_id", jobID), zap.String("execution_id", executionID))
	if e.logs == nil {
		return
	}
	err := e.logs.AppendJobLog(ctx, &models.JobLog{
		ID:          uuid.New().String(),
		JobID:       jobID,
		ExecutionID: executionID,
		Level:       models.LogLevelInfo,
		Message:     message,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		e.logger.Warn("Failed to append job log", zap.Error(err))
	}
}

func (e *Executor) callAPI(ctx context.Context, cfg *models.APICallConfig) *Result {
	timeout := e.defaultTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	method := cfg.Method
	if method == "" {
		method = http.MethodGet
	}

	status, body, headers, err := e.doHTTP(ctx, method, cfg.URL, cfg.Headers, cfg.Body, timeout)
	if err != nil {
		return failure(err)
	}
	if status >= 400 {
		return failure(fmt.Errorf("API call returned HTTP %d: %s", status, truncate(string(body), 512)))
	}

	return success(map[string]any{
		"status":  status,
		"data":    decodeBody(body),
		"headers": headers,
	})
}

func (e *Executor) triggerWebhook(ctx context.Context, cfg *models.WebhookTriggerConfig) *Result {
	method := cfg.Method
	if method == "" {
		method = http.MethodPost
	}

	status, body, _, err := e.doHTTP(ctx, method, cfg.URL, cfg.Headers, cfg.Payload, e.defaultTimeout)
	if err != nil {
		return failure(err)
	}
	if status >= 400 {
		return failure(fmt.Errorf("webhook returned HTTP %d: %s", status, truncate(string(body), 512)))
	}

	return success(map[string]any{
		"status":   status,
		"response": decodeBody(body),
	})
}

func (e *Executor) doHTTP(ctx context.Context, method, url string, headers map[string]string, body []byte, timeout time.Duration) (int, []byte, map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, nil, nil, fmt.Errorf("failed to read response: %w", err)
	}

	respHeaders := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		respHeaders[strings.ToLower(k)] = resp.Header.Get(k)
	}
	return resp.StatusCode, respBody, respHeaders, nil
}

func (e *Executor) runQuery(ctx context.Context, cfg *models.DatabaseQueryConfig) *Result {
	if e.collections == nil {
		return failure(fmt.Errorf("%w: no collection store configured", ErrUnknownOperation))
	}
	data, err := e.collections.ExecuteCollection(ctx, cfg.Model, cfg.Operation, cfg.Data, cfg.Where)
	if err != nil {
		return failure(err)
	}
	return success(data)
}

// decodeBody returns the JSON value of body, or the raw text when it is not JSON
func decodeBody(body []byte) any {
	if len(body) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return string(body)
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
