package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"shop-sync-service/internal/models"
	"shop-sync-service/internal/scheduler"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// JobFile is a YAML document of job definitions
type JobFile struct {
	Jobs []JobDefinition `yaml:"jobs"`
}

// JobDefinition is one job as written by an operator
type JobDefinition struct {
	Name            string         `yaml:"name"`
	Description     string         `yaml:"description,omitempty"`
	Type            string         `yaml:"type"`
	TriggerType     string         `yaml:"triggerType"`
	Status          string         `yaml:"status,omitempty"`
	CronExpression  string         `yaml:"cronExpression,omitempty"`
	IntervalMinutes int            `yaml:"intervalMinutes,omitempty"`
	ScheduledAt     *time.Time     `yaml:"scheduledAt,omitempty"`
	Config          map[string]any `yaml:"config"`
}

// LoadJobFile reads a job file. Unknown keys are rejected so typos fail loudly.
func LoadJobFile(path string) (*JobFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read job file: %w", err)
	}

	var file JobFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse job file: %w", err)
	}
	if len(file.Jobs) == 0 {
		return nil, fmt.Errorf("job file %s defines no jobs", path)
	}
	return &file, nil
}

// ToJob converts the definition into a validated job with a fresh id
func (d JobDefinition) ToJob() (*models.Job, error) {
	config, err := json.Marshal(d.Config)
	if err != nil {
		return nil, fmt.Errorf("job %q: failed to encode config: %w", d.Name, err)
	}

	status := d.Status
	if status == "" {
		status = models.JobStatusActive
	}

	job := &models.Job{
		ID:          uuid.New().String(),
		Name:        d.Name,
		Description: d.Description,
		Type:        models.JobType(d.Type),
		TriggerType: models.TriggerType(d.TriggerType),
		Config:      string(config),
		Status:      status,
		ScheduledAt: d.ScheduledAt,
	}
	if d.CronExpression != "" {
		expr := d.CronExpression
		job.CronExpression = &expr
	}
	if d.IntervalMinutes != 0 {
		minutes := d.IntervalMinutes
		job.IntervalMinutes = &minutes
	}

	if err := scheduler.ValidateJob(job); err != nil {
		return nil, fmt.Errorf("job %q: %w", d.Name, err)
	}
	return job, nil
}

// ToJobs converts every definition, collecting all failures
func (f *JobFile) ToJobs() ([]*models.Job, []error) {
	jobs := make([]*models.Job, 0, len(f.Jobs))
	var errs []error
	for _, def := range f.Jobs {
		job, err := def.ToJob()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, errs
}
