// Package cache mirrors graph collections in Redis so several workers and
// API replicas can share them without a common disk.
package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v7"

	"proteinshake/pkg/graph"
	"proteinshake/pkg/protein"
)

const keyPrefix = "proteinshake:graphs:"

// sharedDataset is the dataset name written into cached collection headers.
// The key already identifies the dataset.
const sharedDataset = "redis"

type GraphCache struct {
	client *redis.Client
	ttl    time.Duration
}

type NewGraphCacheParams struct {
	Addr     string
	Password string
	DB       int
	// TTL of a cached collection. Zero keeps entries until evicted.
	TTL time.Duration
}

func NewGraphCache(params NewGraphCacheParams) (*GraphCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     params.Addr,
		Password: params.Password,
		DB:       params.DB,
	})
	if _, err := client.Ping().Result(); err != nil {
		return nil, fmt.Errorf("redis: %v", err)
	}
	return NewGraphCacheWithClient(client, params.TTL), nil
}

func NewGraphCacheWithClient(client *redis.Client, ttl time.Duration) *GraphCache {
	return &GraphCache{client: client, ttl: ttl}
}

func (c *GraphCache) Close() error {
	return c.client.Close()
}

func (c *GraphCache) GetGraphs(ctx context.Context, key string) ([]*graph.Graph, bool, error) {
	data, err := c.client.WithContext(ctx).Get(keyPrefix + key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis: %v", err)
	}
	graphs, err := protein.ReadCollection[*graph.Graph](bytes.NewReader(data), protein.KindGraphs, sharedDataset)
	if err != nil {
		return nil, false, err
	}
	return graphs, true, nil
}

func (c *GraphCache) PutGraphs(ctx context.Context, key string, graphs []*graph.Graph) error {
	var buf bytes.Buffer
	if err := protein.WriteCollection(&buf, protein.KindGraphs, sharedDataset, graphs); err != nil {
		return err
	}
	if err := c.client.WithContext(ctx).Set(keyPrefix+key, buf.Bytes(), c.ttl).Err(); err != nil {
		return fmt.Errorf("redis: %v", err)
	}
	return nil
}

// Invalidate removes every cached collection whose key starts with prefix.
func (c *GraphCache) Invalidate(ctx context.Context, prefix string) (int, error) {
	rc := c.client.WithContext(ctx)
	iter := rc.Scan(0, keyPrefix+prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next() {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis: %v", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	p := rc.Pipeline()
	for _, k := range keys {
		p.Del(k)
	}
	if _, err := p.Exec(); err != nil {
		return 0, fmt.Errorf("redis: %v", err)
	}
	return len(keys), nil
}
