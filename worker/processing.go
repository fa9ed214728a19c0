package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"

	"imwithroc.com/ensemble/tasks"
	"imwithroc.com/ensemble/utils"
)

// Message asks for one training run of config over the images under corpus_root.
type Message struct {
	JobID      string `json:"job_id"`
	CorpusRoot string `json:"corpus_root"`
	Config     string `json:"config"`
}

type Task struct {
	delivery *amqp.Delivery
	jobTask  *tasks.JobTask
	message  *Message
	logger   *zerolog.Logger
}

func (worker *Worker) processMessage(ctx context.Context, delivery *amqp.Delivery) {
	ctx, cancel := context.WithTimeout(ctx, worker.config.JobTimeout)
	defer cancel()

	task, err := worker.createTask(ctx, delivery)
	rejectLogger := worker.logger.With().Str("message_id", delivery.MessageId).Logger()
	if err != nil {
		worker.logger.Err(err).
			Str("message_id", delivery.MessageId).
			Str("body", string(delivery.Body)).
			Msg("Failed to create task for delivery")
		worker.rmq.rejectDelivery(delivery, &rejectLogger)
		return
	}
	if err = worker.processTask(ctx, task); err != nil {
		worker.rmq.rejectDelivery(delivery, &rejectLogger)
		return
	}
	if err = worker.rmq.publishResult(task); err != nil {
		task.logger.Err(err).Msg("Got error while publishing job result")
		worker.rmq.rejectDelivery(delivery, &rejectLogger)
		return
	}
	if err = worker.rmq.acknowledgeDelivery(delivery); err != nil {
		task.logger.Err(err).Msg("Failed to acknowledge delivery")
	}
	task.logger.Info().Msg("Finished processing RMQ message")
}

func (worker *Worker) createTask(ctx context.Context, delivery *amqp.Delivery) (*Task, error) {
	var message Message
	err := json.Unmarshal(delivery.Body, &message)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal message, got error %w", err)
	}
	if message.JobID == "" {
		return nil, errors.New("message has no job_id")
	}
	jobTask, err := worker.redis.getJobTask(ctx, &message)
	if err != nil {
		return nil, fmt.Errorf("failed to query job task for message, got error %w", err)
	}
	if message.CorpusRoot == "" {
		message.CorpusRoot = jobTask.CorpusRoot
	}
	if message.Config == "" {
		message.Config = jobTask.ConfigName
	}
	taskLogger := worker.logger.With().Str("job_id", message.JobID).Logger()
	task := Task{
		delivery: delivery,
		jobTask:  jobTask,
		message:  &message,
		logger:   &taskLogger,
	}
	return &task, nil
}

func (worker *Worker) processTask(ctx context.Context, task *Task) error {
	shouldPerform, err := worker.shouldPerformTask(ctx, task)
	if err != nil {
		task.logger.Err(err).
			Msg("Got error while trying to decide whether to run task")
		return err
	}
	if !shouldPerform {
		return nil
	}
	if err = worker.redis.onTaskStarted(ctx, task); err != nil {
		task.logger.Err(err).Msg("Failed to update job task")
		return fmt.Errorf("failed to update job task: %w", err)
	}
	outcome, err := worker.runPipeline(ctx, task)
	if err != nil {
		task.logger.Err(err).Msg("Got error while running pipeline")
		if err = worker.redis.onTaskFailedWithError(ctx, task, err); err != nil {
			return err
		}
		return nil
	}
	task.logger.Info().Int("artifacts", len(outcome.Artifacts)).Msg("Finished pipeline, saving artifacts to s3")
	// an S3 failure leaves the job processing so the redelivery retries it
	keys, err := worker.s3.saveArtifacts(task, outcome.Artifacts)
	if err != nil {
		task.logger.Err(err).Msg("Got error while trying to save artifacts")
		return fmt.Errorf("failed to save artifacts: %w", err)
	}
	task.logger.Info().Strs("report_keys", keys).Msg("Saved artifacts, marking job as complete")
	if err = worker.redis.onTaskComplete(ctx, task, outcome, keys); err != nil {
		task.logger.Err(err).Msg("Got error while trying to mark job as complete")
		return err
	}
	return nil
}

func (worker *Worker) runPipeline(ctx context.Context, task *Task) (outcome *Outcome, err error) {
	defer utils.RecoverWithError(&err)
	task.logger.Info().
		Str("corpus_root", task.message.CorpusRoot).
		Str("config", task.message.Config).
		Msgf("Processing message from RMQ, attempt # %d", task.jobTask.Attempts)
	if task.message.CorpusRoot == "" {
		return nil, errors.New("job has no corpus root")
	}
	outcome, err = worker.train(ctx, task.message)
	if err != nil {
		return nil, err
	}
	if outcome == nil {
		task.logger.Error().Msg("Trainer returned neither a result nor an error")
		return nil, errors.New("trainer returned no result")
	}
	return outcome, nil
}

func (worker *Worker) shouldPerformTask(ctx context.Context, task *Task) (bool, error) {
	job := task.jobTask
	taskLogger := task.logger

	if job.IsFinished() {
		taskLogger.Info().
			Str("status", string(job.Status)).
			Msg("Job is already done. (might indicate issue acking message with RMQ). Publishing result again.")
		return false, nil
	}
	if job.UserCanceled {
		taskLogger.Info().Msg("Job was canceled, no need to perform it.")
		err := worker.redis.onTaskCancelled(ctx, task)
		return false, err
	}
	if job.Attempts >= worker.config.TaskMaxRetries {
		taskLogger.Info().Msg("Job has exceeded retries.")
		err := worker.redis.onTaskExceededRetries(ctx, task, worker.config.TaskMaxRetries)
		return false, err
	}
	return true, nil
}
