package scheduler

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"shop-sync-service/internal/models"
)

type fakeJobRepo struct {
	mu         sync.Mutex
	jobs       map[string]*models.Job
	executions map[string]*models.JobExecution
	logs       []models.JobLog
	statuses   map[string]string
	executed   map[string]time.Time
	deleteCut  time.Time
}

func newFakeJobRepo(jobs ...*models.Job) *fakeJobRepo {
	repo := &fakeJobRepo{
		jobs:       make(map[string]*models.Job),
		executions: make(map[string]*models.JobExecution),
		statuses:   make(map[string]string),
		executed:   make(map[string]time.Time),
	}
	for _, job := range jobs {
		repo.jobs[job.ID] = job
	}
	return repo
}

func (f *fakeJobRepo) GetJob(_ context.Context, id string) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, nil
	}
	copied := *job
	return &copied, nil
}

func (f *fakeJobRepo) ListSchedulableJobs(_ context.Context) ([]models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Job
	for _, job := range f.jobs {
		if job.Status == models.JobStatusActive {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (f *fakeJobRepo) UpdateJobStatus(_ context.Context, id, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = status
	if job, ok := f.jobs[id]; ok {
		job.Status = status
	}
	return nil
}

func (f *fakeJobRepo) MarkJobExecuted(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed[id] = at
	return nil
}

func (f *fakeJobRepo) CreateExecution(_ context.Context, exec *models.JobExecution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *exec
	f.executions[exec.ID] = &copied
	return nil
}

func (f *fakeJobRepo) FinishExecution(_ context.Context, exec *models.JobExecution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *exec
	f.executions[exec.ID] = &copied
	return nil
}

func (f *fakeJobRepo) AppendJobLog(_ context.Context, log *models.JobLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, *log)
	return nil
}

func (f *fakeJobRepo) DeleteExecutionsBefore(_ context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCut = before
	var deleted int64
	for id, exec := range f.executions {
		if exec.StartedAt.Before(before) {
			delete(f.executions, id)
			deleted++
		}
	}
	return deleted, nil
}

func (f *fakeJobRepo) status(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses[id]
}

func (f *fakeJobRepo) onlyExecution() *models.JobExecution {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, exec := range f.executions {
		return exec
	}
	return nil
}

func (f *fakeJobRepo) logsAt(level string) []models.JobLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.JobLog
	for _, log := range f.logs {
		if log.Level == level {
			out = append(out, log)
		}
	}
	return out
}

type fakeCollections struct {
	model     string
	operation string
	where     map[string]any
	result    any
	err       error
}

func (f *fakeCollections) ExecuteCollection(_ context.Context, model, operation string, _, where map[string]any) (any, error) {
	f.model = model
	f.operation = operation
	f.where = where
	return f.result, f.err
}

func functionJob(id string, name models.FunctionName, params string) *models.Job {
	cfg := models.FunctionCallConfig{FunctionName: name}
	if params != "" {
		cfg.Params = json.RawMessage(params)
	}
	raw, _ := json.Marshal(cfg)
	return &models.Job{
		ID:          id,
		Name:        "job " + id,
		Type:        models.JobTypeFunctionCall,
		TriggerType: models.TriggerTypeCron,
		Config:      string(raw),
		Status:      models.JobStatusActive,
	}
}

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }
