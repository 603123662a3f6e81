// Package mirror copies the published board state into Redis so other
// processes can read it (GET) or follow it (SUBSCRIBE).
package mirror

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/dgtviewer/internal/state"
	"github.com/park285/dgtviewer/pkg/boardstate"
)

const DefaultKey = "dgt:state"

var ErrNoState = errors.New("no board state mirrored yet")

// UpdatesChannel is the pub/sub channel that carries every state written
// under key.
func UpdatesChannel(key string) string { return strings.TrimSpace(key) + ":updates" }

type Publisher struct {
	rdb    *redis.Client
	key    string
	logger *zap.Logger
}

// Dial connects to redisURL and checks the connection.
func Dial(ctx context.Context, redisURL string) (*redis.Client, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, errors.New("REDIS_URL required for state mirror")
	}
	opts, err := ParseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func NewPublisher(rdb *redis.Client, key string, logger *zap.Logger) *Publisher {
	if strings.TrimSpace(key) == "" {
		key = DefaultKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{rdb: rdb, key: key, logger: logger}
}

// Publish stores st under the key and announces it on the updates channel.
func (p *Publisher) Publish(ctx context.Context, st boardstate.BoardState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	pipe := p.rdb.TxPipeline()
	pipe.Set(ctx, p.key, raw, 0)
	pipe.Publish(ctx, UpdatesChannel(p.key), raw)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mirror publish: %w", err)
	}
	return nil
}

// Run mirrors the store until ctx ends. Redis failures are logged and the
// next change is tried again.
func (p *Publisher) Run(ctx context.Context, store *state.Store) error {
	for {
		changed := store.Changed()
		st := store.Load()
		if err := p.Publish(ctx, st); err != nil && ctx.Err() == nil {
			p.logger.Warn("mirror_publish_failed", zap.String("key", p.key), zap.Error(err))
		} else if err == nil {
			p.logger.Debug("mirror_published", zap.String("encoded", st.Encoded), zap.Bool("connected", st.Connected))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

// Reader fetches mirrored states.
type Reader struct {
	rdb *redis.Client
	key string
}

func NewReader(rdb *redis.Client, key string) *Reader {
	if strings.TrimSpace(key) == "" {
		key = DefaultKey
	}
	return &Reader{rdb: rdb, key: key}
}

func (r *Reader) Fetch(ctx context.Context) (boardstate.BoardState, error) {
	var st boardstate.BoardState
	raw, err := r.rdb.Get(ctx, r.key).Bytes()
	if err == redis.Nil {
		return st, ErrNoState
	}
	if err != nil {
		return st, err
	}
	if err := json.Unmarshal(raw, &st); err != nil {
		return st, fmt.Errorf("decode mirrored state: %w", err)
	}
	return st, nil
}

// ParseRedisURL accepts redis://[:password@]host:port[/db] and rediss://.
func ParseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("redis url has no host")
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("bad redis db %q", p)
		}
		db = n
	}
	pass, _ := u.User.Password()
	opts := &redis.Options{Addr: u.Host, Username: u.User.Username(), Password: pass, DB: db}
	if u.Scheme == "rediss" {
		opts.TLSConfig = &tls.Config{ServerName: u.Hostname(), MinVersion: tls.VersionTLS12}
	}
	return opts, nil
}
