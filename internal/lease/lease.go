// Package lease provides expiring, renewed locks in Postgres. Workers use
// them so that only one of them prefetches a given experiment at a time;
// the others then find the nodes in the cache.
package lease

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

var (
	ErrBusy = errors.New("lease held by another worker")
	ErrLost = errors.New("lease lost")
)

type db interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Locker hands out leases stored in the prefetch_leases table.
type Locker struct {
	db db

	// TTL is how long a lease lives without renewal. It is renewed every
	// TTL/2 while held.
	TTL time.Duration
	// Wait makes Hold poll until the lease is free instead of failing
	// with ErrBusy.
	Wait bool
	Poll time.Duration
}

func New(pool *pgxpool.Pool) *Locker {
	return &Locker{db: pool, TTL: 2 * time.Minute, Wait: true, Poll: time.Second}
}

// Key is the lease key for prefetching one experiment.
func Key(expID string) string {
	return "prefetch:" + expID
}

// Hold runs fn while holding the lease key. The context passed to fn is
// cancelled with ErrLost when a renewal fails.
func (l *Locker) Hold(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	holder, err := gonanoid.New()
	if err != nil {
		return err
	}
	ttl := l.TTL
	if ttl < 2*time.Second {
		ttl = 2 * time.Second
	}

	for {
		ok, err := l.tryAcquire(ctx, key, holder, ttl)
		if err != nil {
			return err
		}
		if ok {
			break
		}
		if !l.Wait {
			return ErrBusy
		}
		if err := sleep(ctx, l.Poll); err != nil {
			return err
		}
	}

	leaseCtx, cancel := context.WithCancelCause(ctx)
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(ttl / 2)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-leaseCtx.Done():
				return
			case <-t.C:
				if err := l.renew(leaseCtx, key, holder, ttl); err != nil {
					cancel(err)
					return
				}
			}
		}
	}()

	err = fn(leaseCtx)
	close(done)
	cancel(context.Canceled)
	_, relErr := l.db.Exec(context.WithoutCancel(ctx), releaseSQL, key, holder)
	return errors.Join(err, relErr)
}

func (l *Locker) tryAcquire(ctx context.Context, key, holder string, ttl time.Duration) (bool, error) {
	var got string
	err := l.db.QueryRow(ctx, acquireSQL, key, holder, ttl.Milliseconds()).Scan(&got)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (l *Locker) renew(ctx context.Context, key, holder string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, ttl/2)
	defer cancel()
	var got string
	err := l.db.QueryRow(ctx, renewSQL, key, holder, ttl.Milliseconds()).Scan(&got)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrLost
	}
	return err
}

// sleep waits d plus up to 20% jitter.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		d = time.Second
	}
	d += time.Duration(rand.Int64N(int64(d)/5 + 1))
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

const acquireSQL = `
INSERT INTO prefetch_leases (lease_key, holder, expires_at)
VALUES ($1, $2, now() + ($3::bigint * interval '1 millisecond'))
ON CONFLICT (lease_key) DO UPDATE
SET holder = EXCLUDED.holder, expires_at = EXCLUDED.expires_at
WHERE prefetch_leases.expires_at < now()
RETURNING lease_key;
`

const renewSQL = `
UPDATE prefetch_leases
SET expires_at = now() + ($3::bigint * interval '1 millisecond')
WHERE lease_key = $1 AND holder = $2
RETURNING lease_key;
`

const releaseSQL = `
DELETE FROM prefetch_leases WHERE lease_key = $1 AND holder = $2;
`
