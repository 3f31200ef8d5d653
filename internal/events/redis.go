package events

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	defaultLikeStream    = "imagehub:like-events"
	defaultCommentStream = "imagehub:comment-events"
)

// RedisTLSConfig controls TLS behaviour for Redis connections.
type RedisTLSConfig struct {
	CAFile             string
	CertFile           string
	KeyFile            string
	ServerName         string
	InsecureSkipVerify bool
}

// RedisPublisherConfig configures the Redis Streams event publisher.
type RedisPublisherConfig struct {
	Addr          string
	Addrs         []string
	Username      string
	Password      string
	LikeStream    string
	CommentStream string
	MasterName    string
	PoolSize      int
	DialTimeout   time.Duration
	WriteTimeout  time.Duration
	TLS           RedisTLSConfig
}

type redisPublisher struct {
	client        redis.UniversalClient
	likeStream    string
	commentStream string
}

// NewRedisPublisher initialises a publisher backed by Redis Streams. The
// caller is responsible for ensuring the Redis instance is reachable.
func NewRedisPublisher(cfg RedisPublisherConfig) (Publisher, error) {
	addrs := make([]string, 0, len(cfg.Addrs)+1)
	for _, addr := range cfg.Addrs {
		if trimmed := strings.TrimSpace(addr); trimmed != "" {
			addrs = append(addrs, trimmed)
		}
	}
	if addr := strings.TrimSpace(cfg.Addr); addr != "" {
		addrs = append(addrs, addr)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("redis addr is required")
	}
	likeStream := strings.TrimSpace(cfg.LikeStream)
	if likeStream == "" {
		likeStream = defaultLikeStream
	}
	commentStream := strings.TrimSpace(cfg.CommentStream)
	if commentStream == "" {
		commentStream = defaultCommentStream
	}
	tlsConfig, err := buildTLSConfig(cfg.TLS)
	if err != nil {
		return nil, err
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        addrs,
		MasterName:   strings.TrimSpace(cfg.MasterName),
		Username:     strings.TrimSpace(cfg.Username),
		Password:     cfg.Password,
		TLSConfig:    tlsConfig,
		DialTimeout:  cfg.DialTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
		MaxRetries:   2,
	})
	return &redisPublisher{
		client:        client,
		likeStream:    likeStream,
		commentStream: commentStream,
	}, nil
}

func (p *redisPublisher) PublishLike(ctx context.Context, event LikeEvent) error {
	return p.publish(ctx, p.likeStream, event.UserID, event)
}

func (p *redisPublisher) PublishComment(ctx context.Context, event CommentEvent) error {
	return p.publish(ctx, p.commentStream, event.UserID, event)
}

func (p *redisPublisher) publish(ctx context.Context, stream, key string, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{"key": key, "payload": string(payload)},
	}).Err()
}

// Close releases the Redis client resources.
func (p *redisPublisher) Close() error {
	return p.client.Close()
}

func buildTLSConfig(cfg RedisTLSConfig) (*tls.Config, error) {
	if cfg.CAFile == "" && cfg.CertFile == "" && cfg.KeyFile == "" && !cfg.InsecureSkipVerify {
		return nil, nil
	}
	tlsCfg := &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}
	if cfg.ServerName != "" {
		tlsCfg.ServerName = cfg.ServerName
	}
	if cfg.CAFile != "" {
		pemData, err := os.ReadFile(filepath.Clean(cfg.CAFile))
		if err != nil {
			return nil, fmt.Errorf("read redis tls ca: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pemData) {
			return nil, fmt.Errorf("redis tls ca is invalid")
		}
		tlsCfg.RootCAs = pool
	}
	if cfg.CertFile != "" || cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(filepath.Clean(cfg.CertFile), filepath.Clean(cfg.KeyFile))
		if err != nil {
			return nil, fmt.Errorf("load redis tls certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}
	return tlsCfg, nil
}
