package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"shop-sync-service/internal/models"
	"shop-sync-service/internal/util"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// JobRepository persists jobs and their execution history
type JobRepository interface {
	// GetJob returns nil, nil when the job does not exist
	GetJob(ctx context.Context, id string) (*models.Job, error)
	ListSchedulableJobs(ctx context.Context) ([]models.Job, error)
	UpdateJobStatus(ctx context.Context, id, status string) error
	MarkJobExecuted(ctx context.Context, id string, at time.Time) error
	CreateExecution(ctx context.Context, exec *models.JobExecution) error
	FinishExecution(ctx context.Context, exec *models.JobExecution) error
	AppendJobLog(ctx context.Context, log *models.JobLog) error
	DeleteExecutionsBefore(ctx context.Context, before time.Time) (int64, error)
}

// Config holds scheduler settings
type Config struct {
	RetentionDays int
	RetentionCron string
}

// DefaultConfig returns the default scheduler settings
func DefaultConfig() Config {
	return Config{
		RetentionDays: 30,
		RetentionCron: "0 3 * * *",
	}
}

// oneShot is the trigger handle of a ONE_TIME job
type oneShot struct {
	timer *time.Timer
}

// Scheduler owns the in-memory trigger registry of jobs
type Scheduler struct {
	config   Config
	repo     JobRepository
	executor *Executor
	cron     *cron.Cron
	logger   *zap.Logger
	now      func() time.Time

	mu             sync.Mutex
	entries        map[string]cron.EntryID
	timers         map[string]*oneShot
	retentionEntry cron.EntryID
	isRunning      bool
	stopped        bool
	baseCtx        context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
}

// NewScheduler creates a new job scheduler; recurring triggers run in UTC
func NewScheduler(config Config, repo JobRepository, executor *Executor) *Scheduler {
	if config.RetentionDays <= 0 {
		config.RetentionDays = DefaultConfig().RetentionDays
	}
	if config.RetentionCron == "" {
		config.RetentionCron = DefaultConfig().RetentionCron
	}
	return &Scheduler{
		config:   config,
		repo:     repo,
		executor: executor,
		cron:     cron.New(cron.WithLocation(time.UTC)),
		logger:   util.GetLogger(),
		now:      time.Now,
		entries:  make(map[string]cron.EntryID),
		timers:   make(map[string]*oneShot),
		baseCtx:  context.Background(),
	}
}

// Start loads persisted jobs, arms their triggers and starts the retention sweeper
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.isRunning = true
	s.stopped = false
	s.baseCtx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	jobs, err := s.repo.ListSchedulableJobs(ctx)
	if err != nil {
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		return fmt.Errorf("failed to load jobs: %w", err)
	}

	loaded := 0
	for i := range jobs {
		job := &jobs[i]
		if job.TriggerType == models.TriggerTypeOneTime && job.LastExecutedAt != nil {
			continue
		}
		if err := s.ScheduleJob(job); err != nil {
			s.logger.Error("Failed to schedule job on startup",
				zap.String("job_id", job.ID),
				zap.String("job_name", job.Name),
				zap.Error(err))
			continue
		}
		loaded++
	}

	entryID, err := s.cron.AddFunc(s.config.RetentionCron, func() {
		if _, err := s.CleanupExecutions(s.runContext()); err != nil {
			s.logger.Error("Retention sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("%w: retention %q: %v", ErrInvalidCronExpression, s.config.RetentionCron, err)
	}
	s.mu.Lock()
	s.retentionEntry = entryID
	s.mu.Unlock()

	s.cron.Start()

	s.logger.Info("Job scheduler started",
		zap.Int("jobs_loaded", loaded),
		zap.Int("retention_days", s.config.RetentionDays),
		zap.String("retention_cron", s.config.RetentionCron))
	return nil
}

// Stop stops every trigger and waits for running jobs or ctx
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.stopped = true
	for id, handle := range s.timers {
		handle.timer.Stop()
		delete(s.timers, id)
	}
	s.cron.Remove(s.retentionEntry)
	s.mu.Unlock()

	cronDone := s.cron.Stop()
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Job scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ScheduleJob registers the trigger of a job, replacing any existing one
func (s *Scheduler) ScheduleJob(job *models.Job) error {
	s.UnscheduleJob(job.ID)

	if job.Status != models.JobStatusActive {
		return fmt.Errorf("%w: %s is %s", ErrJobNotActive, job.ID, job.Status)
	}

	switch job.TriggerType {
	case models.TriggerTypeCron:
		if job.CronExpression == nil || *job.CronExpression == "" {
			s.logger.Error("Job has no cron expression", zap.String("job_id", job.ID))
			return fmt.Errorf("%w: empty expression", ErrInvalidCronExpression)
		}
		return s.scheduleRecurring(job, *job.CronExpression)

	case models.TriggerTypeInterval:
		if job.IntervalMinutes == nil || *job.IntervalMinutes <= 0 {
			s.logger.Error("Job has no valid interval", zap.String("job_id", job.ID))
			return fmt.Errorf("%w: interval must be positive", ErrInvalidTrigger)
		}
		return s.scheduleRecurring(job, intervalExpression(*job.IntervalMinutes))

	case models.TriggerTypeOneTime:
		if job.ScheduledAt == nil {
			s.logger.Error("One-time job has no scheduled time", zap.String("job_id", job.ID))
			return fmt.Errorf("%w: scheduled time is required", ErrInvalidTrigger)
		}
		s.scheduleOnce(job.ID, *job.ScheduledAt)
		return nil

	default:
		return fmt.Errorf("%w: %s", ErrInvalidTrigger, job.TriggerType)
	}
}

// intervalExpression turns an interval in minutes into a fixed-delay schedule.
// A "*/N" minute field would realign on every hour when N does not divide 60.
func intervalExpression(minutes int) string {
	return fmt.Sprintf("@every %dm", minutes)
}

func (s *Scheduler) scheduleRecurring(job *models.Job, expression string) error {
	schedule, err := cron.ParseStandard(expression)
	if err != nil {
		s.logger.Error("Invalid cron expression",
			zap.String("job_id", job.ID),
			zap.String("expression", expression),
			zap.Error(err))
		return fmt.Errorf("%w: %q: %v", ErrInvalidCronExpression, expression, err)
	}

	jobID := job.ID
	entryID := s.cron.Schedule(schedule, cron.FuncJob(func() {
		s.fire(jobID, models.TriggerTypeCron, nil)
	}))

	s.mu.Lock()
	s.entries[jobID] = entryID
	s.updateGauge()
	s.mu.Unlock()

	s.logger.Info("Job scheduled",
		zap.String("job_id", jobID),
		zap.String("trigger", string(job.TriggerType)),
		zap.String("expression", expression))
	return nil
}

func (s *Scheduler) scheduleOnce(jobID string, at time.Time) {
	delay := at.Sub(s.now())
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	handle := &oneShot{}
	s.timers[jobID] = handle
	handle.timer = time.AfterFunc(delay, func() {
		s.fire(jobID, models.TriggerTypeOneTime, handle)
	})
	s.updateGauge()

	s.logger.Info("One-time job scheduled",
		zap.String("job_id", jobID),
		zap.Time("scheduled_at", at),
		zap.Duration("delay", delay))
}

// UnscheduleJob discards the trigger of a job; unknown ids are ignored
func (s *Scheduler) UnscheduleJob(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.entries[jobID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, jobID)
	}
	if handle, ok := s.timers[jobID]; ok {
		handle.timer.Stop()
		delete(s.timers, jobID)
	}
	s.updateGauge()
}

// IsScheduled reports whether a trigger is registered for the job
func (s *Scheduler) IsScheduled(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[jobID]; ok {
		return true
	}
	_, ok := s.timers[jobID]
	return ok
}

// ScheduledJobIDs lists the jobs with a registered trigger
func (s *Scheduler) ScheduledJobIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.entries)+len(s.timers))
	for id := range s.entries {
		ids = append(ids, id)
	}
	for id := range s.timers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// updateGauge must be called with mu held
func (s *Scheduler) updateGauge() {
	util.ScheduledJobs.Set(float64(len(s.entries) + len(s.timers)))
}

func (s *Scheduler) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseCtx
}

// fire runs a triggered job; handle is set for ONE_TIME triggers
func (s *Scheduler) fire(jobID string, trigger models.TriggerType, handle *oneShot) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if handle != nil {
		if s.timers[jobID] != handle {
			s.mu.Unlock()
			return
		}
		delete(s.timers, jobID)
		s.updateGauge()
	}
	s.wg.Add(1)
	ctx := s.baseCtx
	s.mu.Unlock()
	defer s.wg.Done()

	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		s.logger.Error("Failed to load triggered job", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	if job == nil {
		s.logger.Warn("Triggered job no longer exists", zap.String("job_id", jobID))
		s.UnscheduleJob(jobID)
		return
	}
	if job.Status != models.JobStatusActive {
		s.logger.Info("Skipping inactive job", zap.String("job_id", jobID), zap.String("status", job.Status))
		return
	}

	if _, err := s.ExecuteJob(ctx, job, models.TriggeredByScheduled); err != nil {
		s.logger.Error("Scheduled job failed",
			zap.String("job_id", job.ID),
			zap.String("job_name", job.Name),
			zap.Error(err))
	}

	if trigger == models.TriggerTypeOneTime {
		if err := s.repo.UpdateJobStatus(ctx, job.ID, models.JobStatusCompleted); err != nil {
			s.logger.Error("Failed to complete one-time job", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
}

// RunNow executes a job immediately as a manual run
func (s *Scheduler) RunNow(ctx context.Context, jobID string) (*Result, error) {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	if job == nil {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return s.ExecuteJob(ctx, job, models.TriggeredByManual)
}

// ScheduleByID loads a job and registers its trigger
func (s *Scheduler) ScheduleByID(ctx context.Context, jobID string) error {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}
	if job == nil {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return s.ScheduleJob(job)
}

// ExecuteJob records a RUNNING execution, runs the job and finalizes the execution.
// A failed run returns the result together with a non-nil error.
func (s *Scheduler) ExecuteJob(ctx context.Context, job *models.Job, triggeredBy string) (_ *Result, err error) {
	ctx, span := util.StartSpan(ctx, "Scheduler.ExecuteJob")
	defer func() {
		util.RecordError(span, err)
		span.End()
	}()

	startedAt := s.now().UTC()
	exec := &models.JobExecution{
		ID:          uuid.New().String(),
		JobID:       job.ID,
		Status:      models.ExecutionStatusRunning,
		TriggeredBy: triggeredBy,
		StartedAt:   startedAt,
	}
	if err := s.repo.CreateExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("failed to create job execution: %w", err)
	}

	s.logger.Info("Executing job",
		zap.String("job_id", job.ID),
		zap.String("job_name", job.Name),
		zap.String("type", string(job.Type)),
		zap.String("execution_id", exec.ID),
		zap.String("triggered_by", triggeredBy))

	result := s.executor.Execute(ctx, job, exec.ID)

	completedAt := s.now().UTC()
	durationMs := completedAt.Sub(startedAt).Milliseconds()
	exec.CompletedAt = &completedAt
	exec.DurationMs = &durationMs
	if result.Data != nil {
		if data, err := json.Marshal(result.Data); err == nil {
			serialized := string(data)
			exec.Result = &serialized
		}
	}
	if result.Success {
		exec.Status = models.ExecutionStatusSuccess
	} else {
		exec.Status = models.ExecutionStatusFailed
		exec.Error = &result.Error
	}

	if err := s.repo.FinishExecution(ctx, exec); err != nil {
		s.logger.Error("Failed to finalize job execution",
			zap.String("execution_id", exec.ID),
			zap.Error(err))
	}

	util.JobsExecutedTotal.WithLabelValues(string(job.Type), exec.Status).Inc()
	util.JobExecutionDuration.WithLabelValues(string(job.Type)).Observe(completedAt.Sub(startedAt).Seconds())

	if !result.Success {
		s.appendFailureLog(ctx, job, exec.ID, result)
		cause := result.Err
		if cause == nil {
			cause = errors.New(result.Error)
		}
		return result, fmt.Errorf("job %s failed: %w", job.ID, cause)
	}

	if err := s.repo.MarkJobExecuted(ctx, job.ID, completedAt); err != nil {
		s.logger.Error("Failed to stamp job execution time",
			zap.String("job_id", job.ID),
			zap.Error(err))
	}

	s.logger.Info("Job completed",
		zap.String("job_id", job.ID),
		zap.String("execution_id", exec.ID),
		zap.Int64("duration_ms", durationMs))
	return result, nil
}

// appendFailureLog writes the ERROR audit line of a failed execution
func (s *Scheduler) appendFailureLog(ctx context.Context, job *models.Job, executionID string, result *Result) {
	details := map[string]any{
		"error": result.Error,
	}
	if result.Err != nil {
		details["errorType"] = fmt.Sprintf("%T", result.Err)
		details["chain"] = errorChain(result.Err)
	}
	if result.Stack != "" {
		details["stack"] = result.Stack
	}

	var data *string
	if raw, err := json.Marshal(details); err == nil {
		serialized := string(raw)
		data = &serialized
	}

	err := s.repo.AppendJobLog(ctx, &models.JobLog{
		ID:          uuid.New().String(),
		JobID:       job.ID,
		ExecutionID: executionID,
		Level:       models.LogLevelError,
		Message:     fmt.Sprintf("Job %s failed: %s", job.Name, result.Error),
		Data:        data,
		CreatedAt:   s.now().UTC(),
	})
	if err != nil {
		s.logger.Error("Failed to append job log", zap.String("job_id", job.ID), zap.Error(err))
	}
}

// errorChain lists the messages of an error and every error it wraps
func errorChain(err error) []string {
	var chain []string
	for err != nil {
		chain = append(chain, err.Error())
		err = errors.Unwrap(err)
	}
	return chain
}

// CleanupExecutions deletes executions and logs older than the retention window
func (s *Scheduler) CleanupExecutions(ctx context.Context) (int64, error) {
	return s.cleanupOlderThan(ctx, s.config.RetentionDays)
}

func (s *Scheduler) cleanupOlderThan(ctx context.Context, days int) (_ int64, err error) {
	ctx, span := util.StartSpan(ctx, "Scheduler.CleanupExecutions")
	defer func() {
		util.RecordError(span, err)
		span.End()
	}()

	before := s.now().UTC().AddDate(0, 0, -days)
	deleted, err := s.repo.DeleteExecutionsBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old executions: %w", err)
	}

	s.logger.Info("Old job executions deleted",
		zap.Int64("deleted", deleted),
		zap.Time("before", before))
	return deleted, nil
}

// CleanupExecutionsHandler is the cleanup-executions registry function
func (s *Scheduler) CleanupExecutionsHandler(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		OlderThanDays int `json:"olderThanDays"`
	}
	if len(params) > 0 && strings.TrimSpace(string(params)) != "null" {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	days := s.config.RetentionDays
	if p.OlderThanDays > 0 {
		days = p.OlderThanDays
	}

	deleted, err := s.cleanupOlderThan(ctx, days)
	if err != nil {
		return nil, err
	}
	return map[string]any{"deleted": deleted}, nil
}
