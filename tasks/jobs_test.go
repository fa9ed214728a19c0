package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	jsonpatch "github.com/evanphx/json-patch"
	"github.com/stretchr/testify/require"
)

type memoryDocs struct {
	docs map[string][]byte
}

func (m *memoryDocs) GetDoc(_ context.Context, key string, doc interface{}) error {
	b, ok := m.docs[key]
	if !ok {
		return fmt.Errorf("key %s not found", key)
	}
	return json.Unmarshal(b, doc)
}

func (m *memoryDocs) SaveDoc(_ context.Context, key string, doc interface{}) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	m.docs[key] = b
	return nil
}

func (m *memoryDocs) MergeDoc(_ context.Context, key string, patch []byte) ([]byte, error) {
	b, ok := m.docs[key]
	if !ok {
		return nil, fmt.Errorf("key %s not found", key)
	}
	merged, err := jsonpatch.MergePatch(b, patch)
	if err != nil {
		return nil, err
	}
	m.docs[key] = merged
	return merged, nil
}

func (m *memoryDocs) Close() error {
	return nil
}

func TestJobTasks(t *testing.T) {
	ctx := context.Background()
	store := &memoryDocs{docs: map[string][]byte{}}
	jobs := NewJobTasks(store)

	require.Error(t, jobs.Create(ctx, JobTask{}))
	require.NoError(t, jobs.Create(ctx, JobTask{ID: "42", CorpusRoot: "/data"}))

	task, err := jobs.Get(ctx, "42")
	require.NoError(t, err)
	require.Equal(t, StatusSubmitted, task.Status)
	require.False(t, task.IsFinished())

	t.Run("merge keeps untouched fields", func(t *testing.T) {
		started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
		task, err := jobs.Update(ctx, "42", map[string]interface{}{
			"status":     StatusProcessing,
			"attempts":   1,
			"started_at": started,
		})
		require.NoError(t, err)
		require.Equal(t, StatusProcessing, task.Status)
		require.Equal(t, "/data", task.CorpusRoot)
		require.Equal(t, 1, task.Attempts)
		require.True(t, started.Equal(*task.StartedAt))
	})

	t.Run("null removes a field", func(t *testing.T) {
		_, err := jobs.Update(ctx, "42", map[string]interface{}{"error_messages": []string{"boom"}})
		require.NoError(t, err)
		task, err := jobs.Update(ctx, "42", map[string]interface{}{"error_messages": nil, "status": StatusCompleted})
		require.NoError(t, err)
		require.Empty(t, task.ErrorMessages)
		require.True(t, task.IsFinished())
	})

	t.Run("missing job", func(t *testing.T) {
		_, err := jobs.Update(ctx, "nope", map[string]interface{}{"status": StatusFailed})
		require.Error(t, err)
	})
}
