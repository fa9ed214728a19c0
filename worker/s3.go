package worker

import (
	"imwithroc.com/ensemble/report"
	"imwithroc.com/ensemble/s3client"
)

type s3Transactions interface {
	saveArtifacts(task *Task, artifacts []report.Artifact) ([]string, error)
	close()
}

type s3ClientWrapper struct {
	s3Client *s3client.Client
}

func (wrapper *s3ClientWrapper) close() {
	wrapper.s3Client.Close()
}

func (wrapper *s3ClientWrapper) saveArtifacts(task *Task, artifacts []report.Artifact) ([]string, error) {
	keys := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		key := s3client.ReportKey(task.message.JobID, a.Name)
		if _, err := wrapper.s3Client.Upload(a.Body, key, a.ContentType); err != nil {
			task.logger.Err(err).Str("key", key).Msg("Failed to upload artifact")
			return keys, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}
