package rmq

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("ENS_RMQ_HOST", "localhost")
	t.Setenv("ENS_RMQ_PORT", "5672")
	t.Setenv("ENS_RMQ_USERNAME", "guest")
	t.Setenv("ENS_RMQ_PASSWORD", "secret")
	t.Setenv("ENS_TRAINING_QUEUE", "training")
	t.Setenv("ENS_RESULTS_QUEUE", "results")
}

func TestReadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		setRequired(t)
		config, err := ReadConfig()
		require.NoError(t, err)
		require.Equal(t, "ensemble-default-exchange", config.Exchange)
		require.Equal(t, 1, config.MaxParallelRequestCount)
		require.Equal(t, "training", config.TrainingQueue)
		require.Equal(t, "results", config.ResultsQueue)
	})
	t.Run("missing queue", func(t *testing.T) {
		setRequired(t)
		require.NoError(t, os.Unsetenv("ENS_RESULTS_QUEUE"))
		_, err := ReadConfig()
		require.Error(t, err)
	})
}

func TestGetURL(t *testing.T) {
	url := getURL(Config{Host: "mq", Port: "5672", Username: "user", Password: "pw"})
	require.Equal(t, "amqp://user:pw@mq:5672", url)
}
