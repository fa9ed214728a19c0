package s3client

import (
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestReportKey(t *testing.T) {
	require.Equal(t, "reports/job-1/roc.png", ReportKey("job-1", "roc.png"))
}

func TestReadEnvironment(t *testing.T) {
	log := zerolog.Nop()
	t.Setenv("ENS_STORAGE_BUCKET", "")
	require.NoError(t, os.Unsetenv("ENS_STORAGE_BUCKET"))
	_, err := readEnvironment(&log)
	require.Error(t, err)

	t.Setenv("ENS_STORAGE_BUCKET", "artifacts")
	t.Setenv("ENS_AWS_REGION", "us-east-1")
	env, err := readEnvironment(&log)
	require.NoError(t, err)
	require.Equal(t, "prod", env.Env)

	client := Client{region: env.Region, env: env}
	cfg := client.instanceConfig()
	require.Equal(t, "us-east-1", *cfg.Region)
}

func TestStaticConfig(t *testing.T) {
	client := Client{
		region: "eu-west-1",
		env: EnvironmentConfig{
			Env:         "dev",
			AwsEndpoint: "http://localhost:9000",
			AccessKeyID: "id",
			AccessKey:   "secret",
		},
	}
	cfg, err := client.staticConfig()
	require.NoError(t, err)
	require.Equal(t, "http://localhost:9000", *cfg.Endpoint)
	require.True(t, *cfg.S3ForcePathStyle)

	client.env.AccessKeyID = ""
	_, err = client.staticConfig()
	require.Error(t, err)
}
