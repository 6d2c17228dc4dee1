package lock

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/switchboard/internal/config"
	"github.com/smallbiznis/switchboard/internal/storetest"
	"go.uber.org/fx/fxtest"
)

func TestLocalIsExclusive(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	release, err := l.TryAcquire(ctx)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if _, err := l.TryAcquire(ctx); !errors.Is(err, ErrHeld) {
		t.Fatalf("expected ErrHeld, got %v", err)
	}
	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := release(ctx); err != nil {
		t.Fatalf("second release should be a no-op: %v", err)
	}

	again, err := l.TryAcquire(ctx)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	_ = again(ctx)
}

func TestLocalConcurrentAcquire(t *testing.T) {
	l := NewLocal()
	var (
		wg       sync.WaitGroup
		won      atomic.Int32
		rejected atomic.Int32
		start    = make(chan struct{})
		hold     = make(chan struct{})
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			release, err := l.TryAcquire(context.Background())
			if errors.Is(err, ErrHeld) {
				rejected.Add(1)
				return
			}
			won.Add(1)
			<-hold
			_ = release(context.Background())
		}()
	}
	close(start)
	for won.Load()+rejected.Load() < 8 && rejected.Load() < 7 {
		time.Sleep(time.Millisecond)
	}
	close(hold)
	wg.Wait()

	if won.Load() != 1 || rejected.Load() != 7 {
		t.Fatalf("expected 1 winner and 7 rejections, got %d/%d", won.Load(), rejected.Load())
	}
}

func TestNewFallsBackToLocalOffPostgres(t *testing.T) {
	cfg := config.Config{Apply: config.ApplyConfig{LockBackend: config.LockBackendPostgres}}
	l, err := New(Params{
		Lifecycle: fxtest.NewLifecycle(t),
		Config:    cfg,
		DB:        storetest.Open(t),
		Log:       storetest.Logger(),
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, ok := l.(*Local); !ok {
		t.Fatalf("expected local lock on sqlite, got %T", l)
	}
}

func TestNewRedisRequiresAddr(t *testing.T) {
	cfg := config.Config{Apply: config.ApplyConfig{LockBackend: config.LockBackendRedis}}
	_, err := New(Params{
		Lifecycle: fxtest.NewLifecycle(t),
		Config:    cfg,
		DB:        storetest.Open(t),
		Log:       storetest.Logger(),
	})
	if err == nil {
		t.Fatalf("expected error without REDIS_ADDR")
	}
}

func TestRedisLock(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx := context.Background()
	a := NewRedis(client, time.Minute)
	a.key = "switchboard:test:" + t.Name()
	b := NewRedis(client, time.Minute)
	b.key = a.key

	release, err := a.TryAcquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := b.TryAcquire(ctx); !errors.Is(err, ErrHeld) {
		t.Fatalf("expected ErrHeld, got %v", err)
	}
	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	releaseB, err := b.TryAcquire(ctx)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	_ = releaseB(ctx)
}

func TestRenewIntervalStaysBelowTTL(t *testing.T) {
	cases := map[time.Duration]time.Duration{
		5 * time.Minute:        100 * time.Second,
		3 * time.Second:        time.Second,
		150 * time.Millisecond: 100 * time.Millisecond,
	}
	for ttl, want := range cases {
		if got := renewInterval(ttl); got != want {
			t.Fatalf("ttl %s: expected %s, got %s", ttl, want, got)
		}
	}
}

func TestRedisLockOutlivesTTLWhileHeld(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx := context.Background()
	ttl := 600 * time.Millisecond
	a := NewRedis(client, ttl)
	a.key = "switchboard:test:" + t.Name()
	b := NewRedis(client, ttl)
	b.key = a.key
	defer client.Del(ctx, a.key)

	release, err := a.TryAcquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	// A slow apply holds the lock for several TTLs.
	time.Sleep(4 * ttl)
	if _, err := b.TryAcquire(ctx); !errors.Is(err, ErrHeld) {
		t.Fatalf("expected ErrHeld while the holder is alive, got %v", err)
	}

	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if n, err := client.Exists(ctx, a.key).Result(); err != nil || n != 0 {
		t.Fatalf("expected key removed on release, got %d (%v)", n, err)
	}
	releaseB, err := b.TryAcquire(ctx)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	_ = releaseB(ctx)
}
