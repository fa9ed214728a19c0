package worker

import (
	"context"
	"fmt"

	"imwithroc.com/ensemble/redis"
	"imwithroc.com/ensemble/tasks"
)

type redisTransactions interface {
	getJobTask(ctx context.Context, message *Message) (*tasks.JobTask, error)
	onTaskStarted(ctx context.Context, task *Task) error
	onTaskCancelled(ctx context.Context, task *Task) error
	onTaskExceededRetries(ctx context.Context, task *Task, maxRetries int) error
	onTaskFailedWithError(ctx context.Context, task *Task, err error) error
	onTaskComplete(ctx context.Context, task *Task, outcome *Outcome, reportKeys []string) error
	close()
}

type redisClientWrapper struct {
	tasksClient *tasks.Client
}

// jobPatch is an RFC 7386 merge patch over a stored JobTask; nil fields are left untouched.
type jobPatch struct {
	Status        tasks.JobStatus `json:"status,omitempty"`
	CorpusRoot    string          `json:"corpus_root,omitempty"`
	ConfigName    string          `json:"config,omitempty"`
	Attempts      *int            `json:"attempts,omitempty"`
	StartedAt     interface{}     `json:"started_at,omitempty"`
	CompletedAt   interface{}     `json:"completed_at,omitempty"`
	ReportKeys    []string        `json:"report_keys,omitempty"`
	Accuracy      *float64        `json:"accuracy,omitempty"`
	BestParams    string          `json:"best_params,omitempty"`
	ErrorMessages []string        `json:"error_messages,omitempty"`
}

// nullValue marshals to JSON null, which a merge patch reads as "remove".
type nullValue struct{}

func (nullValue) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

func (wrapper *redisClientWrapper) close() {
	wrapper.tasksClient.Close()
}

func (wrapper *redisClientWrapper) update(ctx context.Context, task *Task, patch jobPatch) error {
	updated, err := wrapper.tasksClient.Jobs.Update(ctx, task.message.JobID, patch)
	if err != nil {
		return err
	}
	task.jobTask = updated
	return nil
}

// getJobTask returns the stored job, registering it first when the message is the only
// record of it.
func (wrapper *redisClientWrapper) getJobTask(ctx context.Context, message *Message) (*tasks.JobTask, error) {
	job, err := wrapper.tasksClient.Jobs.Get(ctx, message.JobID)
	if err == nil {
		return job, nil
	}
	if !redis.IsMissing(err) {
		return nil, err
	}
	created := tasks.JobTask{
		ID:         message.JobID,
		CorpusRoot: message.CorpusRoot,
		ConfigName: message.Config,
		Status:     tasks.StatusSubmitted,
	}
	if err := wrapper.tasksClient.Jobs.Create(ctx, created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (wrapper *redisClientWrapper) onTaskStarted(ctx context.Context, task *Task) error {
	attempts := task.jobTask.Attempts + 1
	return wrapper.update(ctx, task, jobPatch{
		Status:      tasks.StatusProcessing,
		CorpusRoot:  task.message.CorpusRoot,
		ConfigName:  task.message.Config,
		Attempts:    &attempts,
		StartedAt:   now(),
		CompletedAt: nullValue{},
	})
}

func (wrapper *redisClientWrapper) onTaskCancelled(ctx context.Context, task *Task) error {
	return wrapper.update(ctx, task, jobPatch{
		Status:        tasks.StatusFailed,
		CompletedAt:   now(),
		ErrorMessages: append(task.jobTask.ErrorMessages, "Job was canceled by user"),
	})
}

func (wrapper *redisClientWrapper) onTaskExceededRetries(ctx context.Context, task *Task, maxRetries int) error {
	return wrapper.update(ctx, task, jobPatch{
		Status:      tasks.StatusFailed,
		CompletedAt: now(),
		ErrorMessages: append(
			task.jobTask.ErrorMessages,
			fmt.Sprintf(
				"Job has exceeded retries. (Attempts: %d, max retries: %d )",
				task.jobTask.Attempts,
				maxRetries,
			),
		),
	})
}

func (wrapper *redisClientWrapper) onTaskFailedWithError(ctx context.Context, task *Task, err error) error {
	return wrapper.update(ctx, task, jobPatch{
		Status:        tasks.StatusFailed,
		CompletedAt:   now(),
		ErrorMessages: append(task.jobTask.ErrorMessages, err.Error()),
	})
}

func (wrapper *redisClientWrapper) onTaskComplete(ctx context.Context, task *Task, outcome *Outcome, reportKeys []string) error {
	patch := jobPatch{
		Status:      tasks.StatusCompleted,
		CompletedAt: now(),
		ReportKeys:  reportKeys,
	}
	if outcome != nil && outcome.Summary != nil {
		if outcome.Summary.Evaluation != nil {
			accuracy := outcome.Summary.Evaluation.Accuracy
			patch.Accuracy = &accuracy
		}
		patch.BestParams = outcome.Summary.BestParams.String()
	}
	return wrapper.update(ctx, task, patch)
}
