package worker

import (
	"time"

	"imwithroc.com/ensemble/tasks"
)

const senderName = "ensemble"

func now() *time.Time {
	t := time.Now().UTC()
	return &t
}

// ResultMessage is published once a job leaves the worker, whatever its outcome.
type ResultMessage struct {
	JobID      string          `json:"job_id"`
	Status     tasks.JobStatus `json:"status"`
	Accuracy   *float64        `json:"accuracy,omitempty"`
	ReportKeys []string        `json:"report_keys,omitempty"`
	Sender     string          `json:"sender"`
}

func resultMessage(task *Task) ResultMessage {
	msg := ResultMessage{JobID: task.message.JobID, Sender: senderName}
	if task.jobTask != nil {
		msg.Status = task.jobTask.Status
		msg.Accuracy = task.jobTask.Accuracy
		msg.ReportKeys = task.jobTask.ReportKeys
	}
	return msg
}
