package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type backend struct {
	name string
	open func(t *testing.T) Store
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func backends() []backend {
	return []backend{
		{"memory", func(t *testing.T) Store { return NewMemoryStore() }},
		{"sqlite", func(t *testing.T) Store {
			s, err := NewSQLiteStore(":memory:")
			require.NoError(t, err)
			return s
		}},
		{"badger", func(t *testing.T) Store {
			s, err := NewBadgerStore("", discardLogger())
			require.NoError(t, err)
			return s
		}},
		{"redis", func(t *testing.T) Store {
			mr := miniredis.RunT(t)
			s, err := NewRedisStore(context.Background(), mr.Addr())
			require.NoError(t, err)
			return s
		}},
	}
}

// TestStore_Conformance runs the same contract against every backend.
func TestStore_Conformance(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			s := b.open(t)
			defer s.Close()

			_, err := s.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Set(ctx, "user:u1:workflows", []byte(`["a"]`), 0))
			got, err := s.Get(ctx, "user:u1:workflows")
			require.NoError(t, err)
			assert.Equal(t, []byte(`["a"]`), got)

			require.NoError(t, s.Set(ctx, "user:u1:workflows", []byte(`["a","b"]`), 0))
			got, err = s.Get(ctx, "user:u1:workflows")
			require.NoError(t, err)
			assert.Equal(t, []byte(`["a","b"]`), got, "set overwrites")

			require.NoError(t, s.Set(ctx, "with-ttl", []byte("v"), time.Hour))
			got, err = s.Get(ctx, "with-ttl")
			require.NoError(t, err)
			assert.Equal(t, []byte("v"), got)

			require.NoError(t, s.Delete(ctx, "user:u1:workflows"))
			require.NoError(t, s.Delete(ctx, "user:u1:workflows"), "deleting twice is fine")
			_, err = s.Get(ctx, "user:u1:workflows")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

// TestStore_Keys verifies prefix listing on every backend.
func TestStore_Keys(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			s := b.open(t)
			defer s.Close()

			for _, k := range []string{"user:u1/art/b", "user:u1/art/a", "user:u2/art/a", "user:u1/other", "user:u1/art*x"} {
				require.NoError(t, s.Set(ctx, k, []byte("x"), 0))
			}

			scanner, ok := s.(Scanner)
			require.True(t, ok)

			keys, err := scanner.Keys(ctx, "user:u1/art/")
			require.NoError(t, err)
			assert.Equal(t, []string{"user:u1/art/a", "user:u1/art/b"}, keys)

			keys, err = scanner.Keys(ctx, "user:u1/art*")
			require.NoError(t, err)
			assert.Equal(t, []string{"user:u1/art*x"}, keys, "glob characters in the prefix are literal")

			keys, err = scanner.Keys(ctx, "nothing:")
			require.NoError(t, err)
			assert.Empty(t, keys)
		})
	}
}

// TestStore_Concurrent exercises parallel writers.
func TestStore_Concurrent(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			s := b.open(t)
			defer s.Close()

			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					key := fmt.Sprintf("k%02d", i)
					assert.NoError(t, s.Set(ctx, key, []byte(key), 0))
					got, err := s.Get(ctx, key)
					assert.NoError(t, err)
					assert.Equal(t, []byte(key), got)
				}(i)
			}
			wg.Wait()
		})
	}
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// TestMemoryStore_TTL verifies expiry with a fake clock.
func TestMemoryStore_TTL(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Unix(1000, 0)}
	s := NewMemoryStore()
	s.now = clock.Now

	require.NoError(t, s.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, s.Set(ctx, "b", []byte("2"), 0))

	clock.Advance(59 * time.Second)
	_, err := s.Get(ctx, "a")
	require.NoError(t, err)

	clock.Advance(time.Second)
	_, err = s.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)

	keys, err := s.Keys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, keys)
}

// TestMemoryStore_CopiesValues verifies callers cannot alias stored bytes.
func TestMemoryStore_CopiesValues(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	in := []byte("abc")
	require.NoError(t, s.Set(ctx, "k", in, 0))
	in[0] = 'X'

	out, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), out)
	out[1] = 'Y'

	again, _ := s.Get(ctx, "k")
	assert.Equal(t, []byte("abc"), again)
}

// TestSQLiteStore_TTLAndPurge verifies expires_at handling.
func TestSQLiteStore_TTLAndPurge(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Unix(1000, 0)}
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()
	s.now = clock.Now

	require.NoError(t, s.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, s.Set(ctx, "b", []byte("2"), 0))

	clock.Advance(2 * time.Minute)
	_, err = s.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)

	keys, err := s.Keys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, keys)

	n, err := s.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

// TestSQLiteStore_Persistence verifies data survives reopening.
func TestSQLiteStore_Persistence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "flowcanvas.db")

	s1, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s1.Set(ctx, "k", []byte("persistent"), 0))
	require.NoError(t, s1.Close())
	require.NoError(t, s1.Close(), "close is idempotent")

	s2, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("persistent"), got)
}

// TestSQLiteStore_Closed verifies ErrStoreClosed after Close.
func TestSQLiteStore_Closed(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.ErrorIs(t, s.Set(context.Background(), "k", nil, 0), ErrStoreClosed)
}

// TestRedisStore_TTL verifies native expiry via miniredis time travel.
func TestRedisStore_TTL(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(ctx, "redis://"+mr.Addr())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Set(ctx, "a", []byte("1"), time.Minute))
	assert.Equal(t, time.Minute, mr.TTL("a"))

	mr.FastForward(time.Minute)
	_, err = s.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestRedisStore_ConnectError verifies that an unreachable server fails fast.
func TestRedisStore_ConnectError(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisStore(context.Background(), addr)
	assert.Error(t, err)
}

// TestBadgerStore_OnDisk verifies the directory-backed mode.
func TestBadgerStore_OnDisk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s1, err := NewBadgerStore(dir, discardLogger())
	require.NoError(t, err)
	require.NoError(t, s1.Set(ctx, "k", []byte("v"), 0))
	require.NoError(t, s1.Close())

	s2, err := NewBadgerStore(dir, discardLogger())
	require.NoError(t, err)
	defer s2.Close()
	got, err := s2.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

// TestTenantNamespace verifies personal and organisation prefixes.
func TestTenantNamespace(t *testing.T) {
	assert.Equal(t, "user:u1", Tenant{UserID: "u1"}.Namespace())
	assert.Equal(t, "org:acme:user:u1", Tenant{UserID: "u1", OrgID: "acme"}.Namespace())
	assert.Equal(t, "user:u1:workflow:w1:meta", Key("user:u1", "workflow", "w1", "meta"))
}

// TestOpen verifies backend selection.
func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, "memory", "", nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(ctx, "sqlite", "", nil)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	s, err = Open(ctx, "badger", "", discardLogger())
	require.NoError(t, err)
	assert.IsType(t, &BadgerStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(ctx, "etcd", "", nil)
	assert.ErrorContains(t, err, "unknown storage backend")
}
