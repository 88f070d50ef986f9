// Package backend wraps the Redis-protocol backend client with the
// bounded-concurrency pool from spec.md §4.4: the driver's own
// transport pool is sized to match, and a counting semaphore enforces
// the in-flight-command cap at the gateway layer too.
package backend

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"

	"github.com/redis/go-redis/v9"

	"gateway/internal/config"
	gwerrors "gateway/internal/errors"
)

// Pool leases backend connections with bounded concurrency and runs
// opaque commands against the backend (spec.md §9: commands are not
// modeled as variants, just identifiers passed through).
type Pool struct {
	client    *redis.Client
	semaphore chan struct{}
}

// New builds a Pool from configuration: the connection URL is built per
// BuildURL, and the semaphore is sized to cfg.PoolCapacity() so it
// agrees with the driver's own pool size.
func New(cfg *config.Config) (*Pool, error) {
	opts, err := redis.ParseURL(BuildURL(cfg))
	if err != nil {
		return nil, fmt.Errorf("backend: parse connection url: %w", err)
	}

	capacity := cfg.PoolCapacity()
	opts.PoolSize = capacity
	if cfg.SSL != nil && cfg.SSL.Enabled {
		opts.TLSConfig = &tls.Config{ServerName: cfg.SSL.ServerNameOverride}
	}

	return &Pool{
		client:    redis.NewClient(opts),
		semaphore: make(chan struct{}, capacity),
	}, nil
}

// BuildURL constructs the backend connection URL from configuration
// per spec.md §4.4: scheme swaps to TLS, credentials are either a
// legacy single password or a user:password pair, and the path carries
// the numeric database index. Mirrors the original implementation's
// handling of both auth forms (SPEC_FULL.md Supplemented Features).
func BuildURL(cfg *config.Config) string {
	return cfg.RedisURL()
}

// Lease reserves a connection slot, waiting for one to free up and
// failing with errors.BackendUnavailable if ctx ends first. spec.md
// §4.5 step 1 requires the lease to happen before the request is even
// parsed, so callers acquire a Lease first and only then parse/
// authorize/execute against it.
func (p *Pool) Lease(ctx context.Context) (*Lease, error) {
	select {
	case p.semaphore <- struct{}{}:
	case <-ctx.Done():
		return nil, gwerrors.BackendUnavailable("pool exhausted")
	}
	return &Lease{pool: p}, nil
}

// Lease holds one reserved slot in the pool's semaphore until Release
// returns it.
type Lease struct {
	pool *Pool
}

// Do issues args as an opaque command against the backend over the
// leased connection, returning the raw reply. An unreachable backend
// surfaces as errors.BackendUnavailable (spec.md §4.4); an explicit
// error reply from the backend (RESP error, not a connection failure)
// is left on the returned Cmd for the caller to map to
// errors.BackendCommand at step 6, since that's a 500, not a 503.
func (l *Lease) Do(ctx context.Context, args ...interface{}) (*redis.Cmd, error) {
	cmd := l.pool.client.Do(ctx, args...)
	if err := cmd.Err(); err != nil && err != redis.Nil && isConnectionError(err) {
		return nil, gwerrors.BackendUnavailable(err.Error())
	}
	return cmd, nil
}

// Release returns the slot to the pool. Callers must call this exactly
// once per Lease, typically via defer right after Lease succeeds.
func (l *Lease) Release() {
	<-l.pool.semaphore
}

// isConnectionError distinguishes a transport-level failure (connection
// refused, timeout, canceled context) from an explicit RESP error
// reply the backend sent deliberately (e.g. WRONGTYPE). go-redis surfaces
// transport failures as a *net.OpError or the context package's own
// sentinel errors; a deliberate RESP error is a plain string error with
// neither shape.
func isConnectionError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// Client exposes the underlying driver client for the pub/sub
// multiplexer, which needs a dedicated, non-pooled connection
// (spec.md §4.4) rather than a leased slot.
func (p *Pool) Client() *redis.Client {
	return p.client
}

// Close releases the underlying connection pool.
func (p *Pool) Close() error {
	return p.client.Close()
}
