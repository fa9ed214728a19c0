package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"imwithroc.com/ensemble/ml"
	"imwithroc.com/ensemble/pipeline"
	"imwithroc.com/ensemble/report"
	"imwithroc.com/ensemble/s3client"
)

const defaultMaxImageBytes = 32 << 20

type Classifier interface {
	Classify(ctx context.Context, name string, image []byte) (*pipeline.Prediction, error)
}

// ReportSource loads stored artifacts by object key.
type ReportSource interface {
	Download(key string) ([]byte, error)
}

// Request serves predictions of one fitted pipeline and the reports of training jobs.
// Summary is the JSON summary of the run behind Model; Reports is optional.
type Request struct {
	Model         Classifier
	Summary       []byte
	Reports       ReportSource
	MaxImageBytes int64
}

func (req *Request) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/classify", req.Classify)
	mux.HandleFunc("/report", req.Report)
	return mux
}

// Classify answers POST /classify; the body is an encoded image.
func (req *Request) Classify(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	logger := makeRequestLogger(r)

	if r.Method != http.MethodPost {
		logger.Err(nil).Int("status", http.StatusMethodNotAllowed).Msg("Only 'POST' method is allowed here")
		http.Error(w, "", http.StatusMethodNotAllowed)
		return
	}
	if req.Model == nil {
		logger.Error().Int("status", http.StatusServiceUnavailable).Msg("No fitted model is loaded")
		http.Error(w, "", http.StatusServiceUnavailable)
		return
	}

	limit := req.MaxImageBytes
	if limit <= 0 {
		limit = defaultMaxImageBytes
	}
	image, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		logger.Err(err).Int("status", http.StatusBadRequest).Msg("Could not read request body")
		http.Error(w, "", http.StatusBadRequest)
		return
	}
	if int64(len(image)) > limit {
		logger.Error().Int("status", http.StatusRequestEntityTooLarge).Msg("Image is too large")
		http.Error(w, "", http.StatusRequestEntityTooLarge)
		return
	}
	if len(image) == 0 {
		logger.Error().Int("status", http.StatusBadRequest).Msg("Empty request body")
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		name = "request"
	}
	prediction, err := req.Model.Classify(r.Context(), name, image)
	if err != nil {
		status := statusFor(err)
		logger.Err(err).Int("status", status).Msg("Could not classify image")
		http.Error(w, err.Error(), status)
		return
	}
	body, err := json.Marshal(prediction)
	if err != nil {
		logger.Err(err).Int("status", http.StatusInternalServerError).Msg("Could not encode prediction")
		http.Error(w, "", http.StatusInternalServerError)
		return
	}
	_, _ = w.Write(body)
	logger.Info().Int("status", http.StatusOK).Str("label", prediction.Label).Msg("Finished processing request")
}

// Report answers GET /report with the summary of the served run, or with the stored summary
// of the job named by the job_id query parameter.
func (req *Request) Report(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	logger := makeRequestLogger(r)

	if r.Method != http.MethodGet {
		logger.Err(nil).Int("status", http.StatusMethodNotAllowed).Msg("Only 'GET' method is allowed here")
		http.Error(w, "", http.StatusMethodNotAllowed)
		return
	}

	jobID := r.URL.Query().Get("job_id")
	if jobID == "" {
		if req.Summary == nil {
			logger.Error().Int("status", http.StatusNotFound).Msg("No run has been evaluated")
			http.Error(w, "", http.StatusNotFound)
			return
		}
		_, _ = w.Write(req.Summary)
		logger.Info().Int("status", http.StatusOK).Msg("Finished processing request")
		return
	}
	if req.Reports == nil {
		logger.Error().Int("status", http.StatusNotFound).Msg("Stored reports are not available")
		http.Error(w, "", http.StatusNotFound)
		return
	}
	key := s3client.ReportKey(jobID, report.SummaryName)
	body, err := req.Reports.Download(key)
	if err != nil {
		logger.Err(err).Str("key", key).Int("status", http.StatusNotFound).Msg("Could not load report")
		http.Error(w, fmt.Sprintf("no report for job %s", jobID), http.StatusNotFound)
		return
	}
	_, _ = w.Write(body)
	logger.Info().Int("status", http.StatusOK).Str("job_id", jobID).Msg("Finished processing request")
}

func statusFor(err error) int {
	var inputErr *ml.InputError
	var notTrained *ml.NotTrainedError
	switch {
	case errors.As(err, &inputErr):
		return http.StatusBadRequest
	case errors.As(err, &notTrained):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
