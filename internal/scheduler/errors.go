package scheduler

import "errors"

var (
	ErrFunctionNotFound      = errors.New("function not found")
	ErrUnknownFunctionName   = errors.New("function name is not part of the registry")
	ErrUnknownJobType        = errors.New("unknown job type")
	ErrUnknownOperation      = errors.New("unknown collection operation")
	ErrInvalidConfig         = errors.New("invalid job config")
	ErrInvalidCronExpression = errors.New("invalid cron expression")
	ErrInvalidTrigger        = errors.New("invalid job trigger")
	ErrJobNotFound           = errors.New("job not found")
	ErrJobNotActive          = errors.New("job is not active")
	ErrAlreadyRunning        = errors.New("scheduler is already running")
)
