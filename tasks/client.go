package tasks

import (
	"context"

	"imwithroc.com/ensemble/redis"
)

type docStore interface {
	GetDoc(ctx context.Context, key string, doc interface{}) error
	SaveDoc(ctx context.Context, key string, doc interface{}) error
	MergeDoc(ctx context.Context, key string, patch []byte) ([]byte, error)
	Close() error
}

type Client struct {
	Jobs JobTasks
}

// NewClient is a preferred way for working with job tasks
func NewClient() (Client, error) {
	jobsRedisClient, err := redis.NewClient(JobsDB)
	if err != nil {
		return Client{}, err
	}
	return Client{
		Jobs: JobTasks{client: jobsRedisClient},
	}, nil
}

func (client *Client) Close() {
	_ = client.Jobs.client.Close()
}
