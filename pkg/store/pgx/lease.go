package pgx

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"proteinshake/internal/util"
	"proteinshake/pkg/logger"
)

var (
	ErrLeaseBusy = errors.New("dataset is being built elsewhere")
	ErrLeaseLost = errors.New("dataset lease lost")
)

const (
	defaultLeaseTTL          = 5 * time.Minute
	defaultLeaseWaitInterval = 2 * time.Second
)

type LeaseOptions struct {
	TTL time.Duration
	// Wait blocks until the lease is free instead of failing with
	// ErrLeaseBusy.
	Wait         bool
	WaitInterval time.Duration
}

func (o LeaseOptions) withDefaults() LeaseOptions {
	if o.TTL <= 0 {
		o.TTL = defaultLeaseTTL
	}
	if o.WaitInterval <= 0 {
		o.WaitInterval = defaultLeaseWaitInterval
	}
	return o
}

// Lease is exclusive ownership of a dataset directory across workers. Its
// Context is cancelled once the lease is released or cannot be renewed.
type Lease struct {
	Key     string
	Holder  string
	Context context.Context

	conn   dbConn
	ttl    time.Duration
	cancel context.CancelCauseFunc
	once   sync.Once
	done   chan struct{}
}

// WithDatasetLease runs fn while holding the lease on key.
func (s *Store) WithDatasetLease(ctx context.Context, key string, opts LeaseOptions, fn func(ctx context.Context) error) error {
	lease, err := s.AcquireLease(ctx, key, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := lease.Release(context.Background()); err != nil {
			logger.Warn("[Store] Failed to release lease", "key", key, "err", err)
		}
	}()
	if err := fn(lease.Context); err != nil {
		if cause := context.Cause(lease.Context); errors.Is(cause, ErrLeaseLost) {
			return cause
		}
		return err
	}
	return nil
}

func (s *Store) AcquireLease(ctx context.Context, key string, opts LeaseOptions) (*Lease, error) {
	if key == "" {
		return nil, errors.New("lease key is empty")
	}
	opts = opts.withDefaults()

	id, err := gonanoid.New()
	if err != nil {
		return nil, err
	}

	for {
		ok, err := s.tryAcquire(ctx, key, id, opts.TTL)
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		if !opts.Wait {
			return nil, ErrLeaseBusy
		}
		logger.Debug("[Store] Waiting for dataset lease", "key", key)
		if err := sleep(ctx, opts.WaitInterval+time.Duration(rand.Int64N(int64(opts.WaitInterval)/2+1))); err != nil {
			return nil, err
		}
	}

	leaseCtx, cancel := context.WithCancelCause(ctx)
	l := &Lease{
		Key:     key,
		Holder:  id,
		Context: leaseCtx,
		conn:    s.conn,
		ttl:     opts.TTL,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go l.keepAlive()
	return l, nil
}

func (s *Store) tryAcquire(ctx context.Context, key, holder string, ttl time.Duration) (bool, error) {
	var got string
	err := s.conn.QueryRow(ctx, acquireLeaseSQL, key, holder, ttl.Milliseconds()).Scan(&got)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return got == key, nil
}

func (l *Lease) Release(ctx context.Context) error {
	l.once.Do(func() {
		close(l.done)
		l.cancel(context.Canceled)
	})
	_, err := l.conn.Exec(ctx, releaseLeaseSQL, l.Key, l.Holder)
	return err
}

func (l *Lease) keepAlive() {
	t := time.NewTicker(max(l.ttl/2, time.Second))
	defer t.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-l.Context.Done():
			return
		case <-t.C:
			if err := l.renew(); err != nil {
				logger.Error("[Store] Dataset lease lost", "key", l.Key, "err", err)
				l.cancel(ErrLeaseLost)
				return
			}
		}
	}
}

func (l *Lease) renew() error {
	_, err := util.RetryWithBackoff(l.Context, 3, 200*time.Millisecond, func(ctx context.Context) (struct{}, error) {
		var got string
		err := l.conn.QueryRow(ctx, renewLeaseSQL, l.Key, l.Holder, l.ttl.Milliseconds()).Scan(&got)
		if errors.Is(err, pgx.ErrNoRows) {
			return struct{}{}, ErrLeaseLost
		}
		return struct{}{}, err
	})
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

const acquireLeaseSQL = `
INSERT INTO dataset_leases (lease_key, holder, expires_at)
VALUES ($1, $2, now() + ($3::bigint * interval '1 millisecond'))
ON CONFLICT (lease_key) DO UPDATE
SET holder     = EXCLUDED.holder,
    expires_at = EXCLUDED.expires_at
WHERE dataset_leases.expires_at < now()
   OR dataset_leases.holder = EXCLUDED.holder
RETURNING lease_key;
`

const renewLeaseSQL = `
UPDATE dataset_leases
SET expires_at = now() + ($3::bigint * interval '1 millisecond')
WHERE lease_key = $1 AND holder = $2
RETURNING lease_key;
`

const releaseLeaseSQL = `
DELETE FROM dataset_leases
WHERE lease_key = $1 AND holder = $2;
`
