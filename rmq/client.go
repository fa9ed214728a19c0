package rmq

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"github.com/streadway/amqp"

	"imwithroc.com/ensemble/logger"
)

type Config struct {
	Host                    string `envconfig:"ENS_RMQ_HOST" required:"true"`
	Port                    string `envconfig:"ENS_RMQ_PORT" required:"true"`
	Username                string `envconfig:"ENS_RMQ_USERNAME" required:"true"`
	Password                string `envconfig:"ENS_RMQ_PASSWORD" required:"true"`
	Exchange                string `envconfig:"ENS_RMQ_DEFAULT_EXCHANGE" default:"ensemble-default-exchange"`
	MaxParallelRequestCount int    `envconfig:"ENS_MQ_MAX_PARALLEL_REQUESTS" default:"1"`
	TrainingQueue           string `envconfig:"ENS_TRAINING_QUEUE" required:"true"`
	ResultsQueue            string `envconfig:"ENS_RESULTS_QUEUE" required:"true"`
}

// Client consumes training jobs on one connection and publishes results on another, so a
// slow consumer never blocks publishing.
type Client struct {
	Deliveries     <-chan amqp.Delivery
	ReqChanErrors  <-chan *amqp.Error
	RespChanErrors <-chan *amqp.Error
	config         Config
	reqConn        *amqp.Connection
	respConn       *amqp.Connection
	respChannel    *amqp.Channel
	logger         *zerolog.Logger
}

func ReadConfig() (Config, error) {
	var config Config
	err := envconfig.Process("", &config)
	return config, err
}

func NewClient() (*Client, error) {
	rmqLogger := logger.NewLogger("RMQ client")
	config, err := ReadConfig()
	if err != nil {
		rmqLogger.Error().Err(err).Msg("Could not read env config")
		return nil, err
	}

	url := getURL(config)
	respConn, respChannel, err := setup(url)
	if err != nil {
		return nil, fmt.Errorf("failed connection: %s", err)
	}
	reqConn, reqChannel, err := setup(url)
	if err != nil {
		_ = respConn.Close()
		return nil, fmt.Errorf("failed connection: %s", err)
	}

	q, err := reqChannel.QueueDeclarePassive(
		config.TrainingQueue, // name
		true,                 // durable
		false,                // delete when unused
		false,                // exclusive
		false,                // no-wait
		nil,                  // arguments
	)
	if err != nil {
		return nil, closeBoth(reqConn, respConn, err)
	}
	if err := reqChannel.QueueBind(
		config.TrainingQueue,
		config.TrainingQueue,
		config.Exchange,
		false,
		nil); err != nil {
		return nil, closeBoth(reqConn, respConn, err)
	}
	// training is heavy; a worker holds only as many unacked jobs as it may run at once
	if err := reqChannel.Qos(config.MaxParallelRequestCount, 0, false); err != nil {
		return nil, closeBoth(reqConn, respConn, fmt.Errorf("qos: %s", err))
	}

	deliveries, err := reqChannel.Consume(
		q.Name,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, closeBoth(reqConn, respConn, fmt.Errorf("consume deliveries: %s", err))
	}
	reqChanErrors := reqChannel.NotifyClose(make(chan *amqp.Error))
	respChanErrors := respChannel.NotifyClose(make(chan *amqp.Error))

	rmqLogger.Info().
		Str("queue", config.TrainingQueue).
		Int("prefetch", config.MaxParallelRequestCount).
		Msg("Consuming training jobs")
	return &Client{
		Deliveries:     deliveries,
		ReqChanErrors:  reqChanErrors,
		RespChanErrors: respChanErrors,
		config:         config,
		reqConn:        reqConn,
		respConn:       respConn,
		respChannel:    respChannel,
		logger:         &rmqLogger,
	}, nil
}

// PublishResult sends msg to the results queue.
func (c *Client) PublishResult(msg amqp.Publishing) error {
	return c.respChannel.Publish(
		c.config.Exchange,
		c.config.ResultsQueue,
		false,
		false,
		msg)
}

func (c *Client) Close() {
	_ = c.reqConn.Close()
	_ = c.respConn.Close()
}

func getURL(config Config) string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s", config.Username, config.Password, config.Host, config.Port)
}

func setup(url string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}

func closeBoth(a, b *amqp.Connection, err error) error {
	_ = a.Close()
	_ = b.Close()
	return err
}
