package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"imwithroc.com/ensemble/redis"
)

const JobsDB redis.DB = 3

type JobStatus string

const (
	StatusSubmitted  JobStatus = "submitted"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// JobTask tracks one training run over a corpus.
type JobTask struct {
	ID            string     `json:"job_id"`
	CorpusRoot    string     `json:"corpus_root"`
	ConfigName    string     `json:"config,omitempty"`
	Status        JobStatus  `json:"status"`
	Attempts      int        `json:"attempts"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	ReportKeys    []string   `json:"report_keys,omitempty"`
	Accuracy      *float64   `json:"accuracy,omitempty"`
	BestParams    string     `json:"best_params,omitempty"`
	ErrorMessages []string   `json:"error_messages,omitempty"`
	UserCanceled  bool       `json:"user_canceled"`
}

func (task JobTask) IsFinished() bool {
	return task.Status == StatusCompleted || task.Status == StatusFailed
}

type JobTasks struct {
	client docStore
}

func NewJobTasks(client docStore) JobTasks {
	return JobTasks{client: client}
}

func JobKey(id string) string {
	return fmt.Sprintf("job:%s", id)
}

func (tasks JobTasks) Create(ctx context.Context, task JobTask) error {
	if task.ID == "" {
		return errors.New("job task has no id")
	}
	if task.Status == "" {
		task.Status = StatusSubmitted
	}
	return tasks.client.SaveDoc(ctx, JobKey(task.ID), &task)
}

func (tasks JobTasks) Get(ctx context.Context, id string) (*JobTask, error) {
	var task JobTask
	err := tasks.client.GetDoc(ctx, JobKey(id), &task)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// Update merges patch, any value marshaling to a JSON object, into the stored task. Fields the
// patch sets to null are removed.
func (tasks JobTasks) Update(ctx context.Context, id string, patch interface{}) (*JobTask, error) {
	b, err := json.Marshal(patch)
	if err != nil {
		return nil, err
	}
	merged, err := tasks.client.MergeDoc(ctx, JobKey(id), b)
	if err != nil {
		return nil, err
	}
	var task JobTask
	if err := json.Unmarshal(merged, &task); err != nil {
		return nil, err
	}
	return &task, nil
}
