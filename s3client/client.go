package s3client

import (
	"bytes"
	"errors"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/sts"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"

	"imwithroc.com/ensemble/logger"
)

const reportsPrefix = "reports"

// Client stores run artifacts in one bucket. The session is refreshed in the background
// whenever a request fails with the current one.
type Client struct {
	holder     *sessionHolder
	bucketName string
	region     string
	env        EnvironmentConfig
}

type sessionHolder struct {
	curr      *session.Session
	requestCh <-chan *session.Session
	errorCh   chan<- error
	closeCh   chan<- struct{}
}

var clientLogger = logger.NewLogger("S3Client")
var sdkLogger = logger.NewLogger("S3-SDK")

type EnvironmentConfig struct {
	BucketName  string `envconfig:"ENS_STORAGE_BUCKET" required:"true"`
	Env         string `envconfig:"ENS_ENV" default:"prod"`
	Region      string `envconfig:"ENS_AWS_REGION" required:"true"`
	AwsEndpoint string `envconfig:"ENS_AWS_ENDPOINT_URL" default:""`
	AccessKeyID string `envconfig:"ENS_AWS_ACCESS_ID" default:""`
	AccessKey   string `envconfig:"ENS_AWS_ACCESS_KEY" default:""`
}

// ReportKey is the object key of one artifact of a job.
func ReportKey(jobID, name string) string {
	return path.Join(reportsPrefix, jobID, name)
}

func New() (*Client, error) {
	errLogger := clientLogger.With().Caller().Logger()
	env, err := readEnvironment(&errLogger)
	if err != nil {
		return nil, err
	}
	client := Client{
		bucketName: env.BucketName,
		region:     env.Region,
		env:        env,
	}
	sessionCh := make(chan *session.Session)
	errorCh := make(chan error)
	closeCh := make(chan struct{}, 1)

	client.holder = &sessionHolder{
		requestCh: sessionCh,
		errorCh:   errorCh,
		closeCh:   closeCh,
	}
	if err := client.acquireNewSession(); err != nil {
		return nil, err
	}
	go keepSessionRefreshed(&client, sessionCh, errorCh, closeCh)
	return &client, nil
}

func (client Client) Upload(body []byte, key string, contentType string) (*s3manager.UploadOutput, error) {
	var output *s3manager.UploadOutput
	err := client.withSession(func(sess *session.Session) error {
		params := &s3manager.UploadInput{
			Bucket:      aws.String(client.bucketName),
			Key:         aws.String(key),
			Body:        bytes.NewReader(body),
			ContentType: aws.String(contentType),
		}
		var err error
		output, err = client.upload(sess, params)
		return err
	})
	return output, err
}

func (client Client) Download(key string) ([]byte, error) {
	var body []byte
	err := client.withSession(func(sess *session.Session) error {
		params := &s3.GetObjectInput{
			Bucket: aws.String(client.bucketName),
			Key:    aws.String(key),
		}
		var err error
		body, err = client.download(sess, params)
		return err
	})
	return body, err
}

func (client Client) Close() {
	client.holder.closeCh <- struct{}{}
}

// withSession runs op once, and a second time on a refreshed session if the first try fails.
func (client Client) withSession(op func(sess *session.Session) error) error {
	sess, err := client.session()
	if err != nil {
		return err
	}
	if err = op(sess); err == nil {
		return nil
	}
	sess, err = client.tryRefreshingSession(err)
	if err != nil {
		return err
	}
	return op(sess)
}

func (client Client) upload(sess *session.Session, params *s3manager.UploadInput) (*s3manager.UploadOutput, error) {
	objLogger := clientLogger.With().
		Str("key", *params.Key).
		Str("bucket", *params.Bucket).Logger()
	sdkLog := sdkLogger.With().
		Str("key", *params.Key).
		Str("bucket", *params.Bucket).Logger()

	uploader := s3manager.NewUploader(sess.Copy(&aws.Config{Logger: getLogger(sdkLog)}))
	objLogger.Debug().Str("content_type", *params.ContentType).Msg("Uploading artifact")
	return uploader.Upload(params)
}

func (client Client) download(sess *session.Session, params *s3.GetObjectInput) ([]byte, error) {
	objLogger := clientLogger.With().
		Str("key", *params.Key).
		Str("bucket", *params.Bucket).Logger()
	sdkLog := sdkLogger.With().
		Str("key", *params.Key).
		Str("bucket", *params.Bucket).Logger()

	downloader := s3manager.NewDownloader(sess.Copy(&aws.Config{Logger: getLogger(sdkLog)}))
	buf := aws.NewWriteAtBuffer([]byte{})
	size, err := downloader.Download(buf, params)
	if err != nil {
		objLogger.Error().Err(err).Msg("Failed to download artifact")
		return nil, err
	}
	objLogger.Debug().Int64("bytes", size).Msg("Downloaded artifact")
	return buf.Bytes(), nil
}

func keepSessionRefreshed(client *Client, sessionCh chan<- *session.Session, errorCh <-chan error, closeCh <-chan struct{}) {
	for {
		select {
		case sessionCh <- client.holder.curr:
			continue
		default:
		}
		select {
		case sessionCh <- client.holder.curr:
		case err := <-errorCh:
			clientLogger.Error().Err(err).Msg("Caught error while using S3 session, trying to refresh it")
			if err = client.acquireNewSession(); err != nil {
				clientLogger.Error().Err(err).Msg("Caught error while refreshing S3 session")
				continue
			}
			clientLogger.Info().Msg("Successfully refreshed session")
		case <-closeCh:
			clientLogger.Info().Msg("Closing client")
			return
		}
	}
}

func (client Client) tryRefreshingSession(err error) (*session.Session, error) {
	var sess *session.Session
	select {
	case client.holder.errorCh <- err:
		sess = <-client.holder.requestCh
	case sess = <-client.holder.requestCh:
	}
	if sess == nil {
		return nil, errors.New("failed to refresh session")
	}
	return sess, nil
}

func (client Client) session() (*session.Session, error) {
	sess := <-client.holder.requestCh
	if sess == nil {
		return nil, errors.New("could not get session")
	}
	return sess, nil
}

func (client Client) instanceConfig() *aws.Config {
	return &aws.Config{
		Region:     aws.String(client.region),
		MaxRetries: aws.Int(4),
		LogLevel:   aws.LogLevel(aws.LogDebug),
	}
}

func (client Client) staticConfig() (*aws.Config, error) {
	creds := credentials.NewStaticCredentials(client.env.AccessKeyID, client.env.AccessKey, "")
	if _, err := creds.Get(); err != nil {
		return nil, fmt.Errorf("credentials from environment: %w", err)
	}
	cfg := aws.NewConfig().
		WithRegion(client.region).
		WithMaxRetries(4).
		WithCredentials(creds).
		WithLogLevel(aws.LogDebug)

	// local S3 compatible stores, e.g. minio
	if client.env.Env == "dev" && len(client.env.AwsEndpoint) > 0 {
		cfg = cfg.WithEndpoint(client.env.AwsEndpoint).WithS3ForcePathStyle(true)
	}
	return cfg, nil
}

// acquireNewSession tries instance credentials first and falls back to the static ones from
// the environment. A session only counts once STS can identify the caller.
func (client *Client) acquireNewSession() error {
	sess, err := session.NewSession(client.instanceConfig())
	if err == nil {
		if _, err = sts.New(sess).GetCallerIdentity(&sts.GetCallerIdentityInput{}); err == nil {
			client.holder.curr = sess
			clientLogger.Info().Msg("S3 session successfully initialized using EC2")
			return nil
		}
	}
	clientLogger.Info().Msg("Could not initialize S3 session using EC2, trying env credentials")

	client.holder.curr = nil
	cfg, err := client.staticConfig()
	if err != nil {
		clientLogger.Error().Err(err).Msg("Could not initialize S3 session")
		return err
	}
	sess, err = session.NewSession(cfg)
	if err != nil {
		clientLogger.Error().Err(err).Msg("Could not initialize S3 session")
		return err
	}
	if _, err = sts.New(sess).GetCallerIdentity(&sts.GetCallerIdentityInput{}); err != nil {
		clientLogger.Error().Err(err).Msg("Could not initialize S3 session")
		return errors.New("could not initialize S3 session")
	}
	client.holder.curr = sess
	clientLogger.Info().Msg("S3 session successfully initialized using env credentials")
	return nil
}

func readEnvironment(errLogger *zerolog.Logger) (EnvironmentConfig, error) {
	var config EnvironmentConfig
	err := envconfig.Process("", &config)
	if err != nil {
		errLogger.Err(err).Msg("Got error while processing environment")
		return config, err
	}
	return config, nil
}

type s3Logger struct {
	sdkLogger zerolog.Logger
}

func getLogger(l zerolog.Logger) *s3Logger {
	return &s3Logger{l}
}

func (l *s3Logger) Log(v ...interface{}) {
	l.sdkLogger.Debug().Msg(fmt.Sprint(v...))
}
