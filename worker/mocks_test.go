package worker

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"

	"imwithroc.com/ensemble/report"
	"imwithroc.com/ensemble/tasks"
)

type failingMethod struct {
	fail bool
}

type withValue struct {
	fail          bool
	returnedValue interface{}
}

type trainerMock struct {
	train  Trainer
	config trainerMockConfig
	calls  trainerCall
}

type trainerMockConfig struct {
	fail  bool
	empty bool
	panic bool
}

type trainerCall struct {
	train bool
}

type redisMock struct {
	config redisMockConfig
	calls  redisMockCalls
}

type redisMockConfig struct {
	getJobTask            withValue
	onTaskCancelled       failingMethod
	onTaskStarted         failingMethod
	onTaskExceededRetries failingMethod
	onTaskFailedWithError failingMethod
	onTaskComplete        failingMethod
}

type redisMockCalls struct {
	getJobTask            bool
	onTaskCancelled       bool
	onTaskStarted         bool
	onTaskExceededRetries bool
	onTaskFailedWithError bool
	onTaskComplete        bool
}

type rmqMock struct {
	config rmqMockConfig
	calls  rmqMockCalls
}

type rmqMockConfig struct {
	publishResult       failingMethod
	acknowledgeDelivery failingMethod
}

type rmqMockCalls struct {
	publishResult       bool
	acknowledgeDelivery bool
	rejectDelivery      bool
}

type s3Mock struct {
	config s3MockConfig
	calls  s3MockCalls
}

type s3MockConfig struct {
	saveArtifacts failingMethod
}

type s3MockCalls struct {
	saveArtifacts bool
}

func (mock *s3Mock) close() {}

func (mock *rmqMock) close() {}

func (mock *redisMock) close() {}

func getTrainerMock(config trainerMockConfig) *trainerMock {
	mock := &trainerMock{config: config}
	mock.train = func(ctx context.Context, message *Message) (*Outcome, error) {
		mock.calls.train = true
		switch {
		case mock.config.panic:
			panic("trainer blew up")
		case mock.config.fail:
			return nil, errors.New("pipeline failed")
		case mock.config.empty:
			return nil, nil
		}
		return &Outcome{
			Artifacts: []report.Artifact{{Name: report.TextReportName, Body: []byte("report")}},
		}, nil
	}
	return mock
}

func (mock *redisMock) getJobTask(ctx context.Context, message *Message) (*tasks.JobTask, error) {
	mock.calls.getJobTask = true
	if mock.config.getJobTask.fail {
		return nil, errors.New("failed to get job task")
	}
	switch value := mock.config.getJobTask.returnedValue.(type) {
	case tasks.JobTask:
		return &value, nil
	default:
		return &tasks.JobTask{ID: message.JobID, Status: tasks.StatusSubmitted}, nil
	}
}

func (mock *redisMock) onTaskStarted(ctx context.Context, task *Task) error {
	mock.calls.onTaskStarted = true
	if mock.config.onTaskStarted.fail {
		return errors.New("failed to update job task on start")
	}
	return nil
}

func (mock *redisMock) onTaskCancelled(ctx context.Context, task *Task) error {
	mock.calls.onTaskCancelled = true
	if mock.config.onTaskCancelled.fail {
		return errors.New("failed to update job task on cancel")
	}
	return nil
}

func (mock *redisMock) onTaskExceededRetries(ctx context.Context, task *Task, maxRetries int) error {
	mock.calls.onTaskExceededRetries = true
	if mock.config.onTaskExceededRetries.fail {
		return errors.New("failed to update job task on exceeded retries")
	}
	return nil
}

func (mock *redisMock) onTaskFailedWithError(ctx context.Context, task *Task, err error) error {
	mock.calls.onTaskFailedWithError = true
	if mock.config.onTaskFailedWithError.fail {
		return errors.New("failed to update job task on fail with error")
	}
	return nil
}

func (mock *redisMock) onTaskComplete(ctx context.Context, task *Task, outcome *Outcome, reportKeys []string) error {
	mock.calls.onTaskComplete = true
	if mock.config.onTaskComplete.fail {
		return errors.New("failed to update job task on complete")
	}
	return nil
}

func (mock *rmqMock) rejectDelivery(delivery *amqp.Delivery, logger *zerolog.Logger) {
	mock.calls.rejectDelivery = true
}

func (mock *rmqMock) getDeliveriesCh() <-chan amqp.Delivery {
	return nil
}

func (mock *rmqMock) getReqChanErrorsCh() <-chan *amqp.Error {
	return nil
}

func (mock *rmqMock) getRespChanErrorsCh() <-chan *amqp.Error {
	return nil
}

func (mock *rmqMock) publishResult(task *Task) error {
	mock.calls.publishResult = true
	if mock.config.publishResult.fail {
		return errors.New("failed to publish result")
	}
	return nil
}

func (mock *rmqMock) acknowledgeDelivery(delivery *amqp.Delivery) error {
	mock.calls.acknowledgeDelivery = true
	if mock.config.acknowledgeDelivery.fail {
		return errors.New("failed to acknowledge delivery")
	}
	return nil
}

func (mock *s3Mock) saveArtifacts(task *Task, artifacts []report.Artifact) ([]string, error) {
	mock.calls.saveArtifacts = true
	if mock.config.saveArtifacts.fail {
		return nil, errors.New("failed to upload artifacts")
	}
	keys := make([]string, len(artifacts))
	for i, a := range artifacts {
		keys[i] = task.message.JobID + "/" + a.Name
	}
	return keys, nil
}
