package scheduler

import (
	"encoding/json"
	"fmt"
	"strings"

	"shop-sync-service/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

var configValidator = validator.New()

// ValidateJob checks a job definition before it is stored. The config must
// decode into the shape of the job type and the trigger must be schedulable.
func ValidateJob(job *models.Job) error {
	if strings.TrimSpace(job.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}

	switch job.Type {
	case models.JobTypeFunctionCall:
		var cfg models.FunctionCallConfig
		if err := decodeConfig(configValidator, job.Config, &cfg); err != nil {
			return err
		}
		if _, ok := knownFunctions[cfg.FunctionName]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownFunctionName, cfg.FunctionName)
		}
	case models.JobTypeAPICall:
		if err := decodeConfig(configValidator, job.Config, &models.APICallConfig{}); err != nil {
			return err
		}
	case models.JobTypeDatabaseQuery:
		if err := decodeConfig(configValidator, job.Config, &models.DatabaseQueryConfig{}); err != nil {
			return err
		}
	case models.JobTypeWebhookTrigger:
		if err := decodeConfig(configValidator, job.Config, &models.WebhookTriggerConfig{}); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownJobType, job.Type)
	}

	return validateTrigger(job)
}

func validateTrigger(job *models.Job) error {
	switch job.TriggerType {
	case models.TriggerTypeCron:
		if job.CronExpression == nil || *job.CronExpression == "" {
			return fmt.Errorf("%w: empty expression", ErrInvalidCronExpression)
		}
		if _, err := cron.ParseStandard(*job.CronExpression); err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidCronExpression, *job.CronExpression, err)
		}
	case models.TriggerTypeInterval:
		if job.IntervalMinutes == nil || *job.IntervalMinutes <= 0 {
			return fmt.Errorf("%w: interval must be positive", ErrInvalidTrigger)
		}
	case models.TriggerTypeOneTime:
		if job.ScheduledAt == nil {
			return fmt.Errorf("%w: scheduled time is required", ErrInvalidTrigger)
		}
	default:
		return fmt.Errorf("%w: %s", ErrInvalidTrigger, job.TriggerType)
	}
	return nil
}

func decodeConfig(v *validator.Validate, raw string, out any) error {
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := v.Struct(out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
