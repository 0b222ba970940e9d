package models

import (
	"encoding/json"
	"time"
)

// JobType selects the handler a job is dispatched to
type JobType string

const (
	JobTypeFunctionCall   JobType = "FUNCTION_CALL"
	JobTypeAPICall        JobType = "API_CALL"
	JobTypeDatabaseQuery  JobType = "DATABASE_QUERY"
	JobTypeWebhookTrigger JobType = "WEBHOOK_TRIGGER"
)

// TriggerType selects how a job is scheduled
type TriggerType string

const (
	TriggerTypeCron     TriggerType = "CRON"
	TriggerTypeInterval TriggerType = "INTERVAL"
	TriggerTypeOneTime  TriggerType = "ONE_TIME"
)

// Job statuses
const (
	JobStatusActive    = "ACTIVE"
	JobStatusInactive  = "INACTIVE"
	JobStatusCompleted = "COMPLETED"
)

// Execution statuses
const (
	ExecutionStatusRunning = "RUNNING"
	ExecutionStatusSuccess = "SUCCESS"
	ExecutionStatusFailed  = "FAILED"
)

// Execution triggers
const (
	TriggeredByScheduled = "SCHEDULED"
	TriggeredByManual    = "MANUAL"
)

// Job log levels
const (
	LogLevelInfo  = "INFO"
	LogLevelError = "ERROR"
)

// Job is a declarative unit of work
type Job struct {
	ID              string      `db:"id" json:"id"`
	Name            string      `db:"name" json:"name"`
	Description     string      `db:"description" json:"description"`
	Type            JobType     `db:"type" json:"type"`
	TriggerType     TriggerType `db:"trigger_type" json:"trigger_type"`
	Config          string      `db:"config" json:"config"`
	Status          string      `db:"status" json:"status"`
	CronExpression  *string     `db:"cron_expression" json:"cron_expression,omitempty"`
	IntervalMinutes *int        `db:"interval_minutes" json:"interval_minutes,omitempty"`
	ScheduledAt     *time.Time  `db:"scheduled_at" json:"scheduled_at,omitempty"`
	LastExecutedAt  *time.Time  `db:"last_executed_at" json:"last_executed_at,omitempty"`
	CreatedAt       time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at" json:"updated_at"`
}

// JobExecution is one firing of a job
type JobExecution struct {
	ID          string     `db:"id" json:"id"`
	JobID       string     `db:"job_id" json:"job_id"`
	Status      string     `db:"status" json:"status"`
	TriggeredBy string     `db:"triggered_by" json:"triggered_by"`
	StartedAt   time.Time  `db:"started_at" json:"started_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	DurationMs  *int64     `db:"duration_ms" json:"duration_ms,omitempty"`
	Result      *string    `db:"result" json:"result,omitempty"`
	Error       *string    `db:"error" json:"error,omitempty"`
}

// JobLog is an append-only audit line of an execution
type JobLog struct {
	ID          string    `db:"id" json:"id"`
	JobID       string    `db:"job_id" json:"job_id"`
	ExecutionID string    `db:"execution_id" json:"execution_id"`
	Level       string    `db:"level" json:"level"`
	Message     string    `db:"message" json:"message"`
	Data        *string   `db:"data" json:"data,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// FunctionName names a handler in the function registry
type FunctionName string

const (
	FunctionSyncAllShops         FunctionName = "sync-all-shops"
	FunctionSyncShopOrders       FunctionName = "sync-shop-orders"
	FunctionCleanupNotifications FunctionName = "cleanup-notifications"
	FunctionCleanupExecutions    FunctionName = "cleanup-executions"
	FunctionExpireStaleTokens    FunctionName = "expire-stale-tokens"
)

// FunctionCallConfig is the config of a FUNCTION_CALL job
type FunctionCallConfig struct {
	FunctionName FunctionName    `json:"functionName" validate:"required"`
	Params       json.RawMessage `json:"params,omitempty"`
}

// APICallConfig is the config of an API_CALL job
type APICallConfig struct {
	URL     string            `json:"url" validate:"required,url"`
	Method  string            `json:"method" validate:"omitempty,oneof=GET POST PUT PATCH DELETE HEAD"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    json.RawMessage   `json:"body,omitempty"`
	// Timeout is in seconds; zero uses the executor default
	Timeout int `json:"timeout,omitempty" validate:"gte=0,lte=3600"`
}

// DatabaseQueryConfig is the config of a DATABASE_QUERY job
type DatabaseQueryConfig struct {
	Operation string         `json:"operation" validate:"required,oneof=create update updateMany delete deleteMany findMany"`
	Model     string         `json:"model" validate:"required"`
	Data      map[string]any `json:"data,omitempty"`
	Where     map[string]any `json:"where,omitempty"`
}

// WebhookTriggerConfig is the config of a WEBHOOK_TRIGGER job
type WebhookTriggerConfig struct {
	URL     string            `json:"url" validate:"required,url"`
	Method  string            `json:"method" validate:"omitempty,oneof=GET POST PUT PATCH DELETE"`
	Headers map[string]string `json:"headers,omitempty"`
	Payload json.RawMessage   `json:"payload,omitempty"`
}
