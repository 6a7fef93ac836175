package lease

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type row struct {
	key string
	err error
}

func (r row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*string) = r.key
	return nil
}

// fakeDB keeps leases in memory; expired leases are never taken over.
type fakeDB struct {
	mu      sync.Mutex
	holders map[string]string
	renews  int
	lose    bool
}

func newFakeDB() *fakeDB { return &fakeDB{holders: map[string]string{}} }

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, holder := args[0].(string), args[1].(string)
	switch {
	case strings.Contains(sql, "INSERT"):
		if h, ok := f.holders[key]; ok && h != holder {
			return row{err: pgx.ErrNoRows}
		}
		f.holders[key] = holder
		return row{key: key}
	default:
		f.renews++
		if f.lose || f.holders[key] != holder {
			return row{err: pgx.ErrNoRows}
		}
		return row{key: key}
	}
}

func (f *fakeDB) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.holders[args[0].(string)] == args[1].(string) {
		delete(f.holders, args[0].(string))
	}
	return pgconn.NewCommandTag("DELETE 1"), nil
}

func TestHoldReleases(t *testing.T) {
	t.Parallel()

	db := newFakeDB()
	l := &Locker{db: db, TTL: time.Minute}
	ran := false
	err := l.Hold(context.Background(), Key("20181018.003"), func(context.Context) error {
		ran = true
		if len(db.holders) != 1 {
			t.Errorf("lease not stored while held")
		}
		return nil
	})
	if err != nil || !ran {
		t.Fatalf("Hold() = %v, ran = %v", err, ran)
	}
	if len(db.holders) != 0 {
		t.Fatalf("lease not released: %v", db.holders)
	}
}

func TestHoldBusy(t *testing.T) {
	t.Parallel()

	db := newFakeDB()
	db.holders[Key("20181018.003")] = "someone-else"
	l := &Locker{db: db, TTL: time.Minute}
	err := l.Hold(context.Background(), Key("20181018.003"), func(context.Context) error {
		t.Fatalf("fn must not run without the lease")
		return nil
	})
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("Hold() error = %v, want ErrBusy", err)
	}
}

func TestHoldWaitsForRelease(t *testing.T) {
	t.Parallel()

	db := newFakeDB()
	key := Key("20181018.003")
	db.holders[key] = "someone-else"
	l := &Locker{db: db, TTL: time.Minute, Wait: true, Poll: 10 * time.Millisecond}

	go func() {
		time.Sleep(30 * time.Millisecond)
		db.mu.Lock()
		delete(db.holders, key)
		db.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.Hold(ctx, key, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("Hold() error = %v", err)
	}
}

func TestHoldCancelsOnLostLease(t *testing.T) {
	t.Parallel()

	db := newFakeDB()
	db.lose = true
	l := &Locker{db: db, TTL: 2 * time.Second}

	err := l.Hold(context.Background(), Key("20181018.003"), func(ctx context.Context) error {
		<-ctx.Done()
		return context.Cause(ctx)
	})
	if !errors.Is(err, ErrLost) {
		t.Fatalf("Hold() error = %v, want ErrLost", err)
	}
}
