package funcid

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAcquireReturnsDistinctIDs(t *testing.T) {
	p := New()
	seen := make(map[int]bool)
	for i := 0; i < 255; i++ {
		l, err := p.Acquire(context.Background(), time.Minute)
		require.NoError(t, err)
		require.False(t, seen[l.Value], "id %d leased twice while still live", l.Value)
		seen[l.Value] = true
	}
	require.Len(t, seen, 255)
}

func TestAcquireBlocksWhenExhausted(t *testing.T) {
	p := New()
	var leases []*Lease
	for i := 0; i < 255; i++ {
		l, err := p.Acquire(context.Background(), time.Minute)
		require.NoError(t, err)
		leases = append(leases, l)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := p.Acquire(ctx, time.Minute)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	leases[0].Release()
	l, err := p.Acquire(context.Background(), time.Minute)
	require.NoError(t, err)
	require.Equal(t, leases[0].Value, l.Value)
}

func TestSetResultCompletesLeaseAndReturnsID(t *testing.T) {
	p := New()
	l, err := p.Acquire(context.Background(), time.Minute)
	require.NoError(t, err)

	ok := p.SetResult(l.Value, "txComplete")
	require.True(t, ok)

	res, err := l.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, "txComplete", res)

	l2, err := p.Acquire(context.Background(), time.Minute)
	require.NoError(t, err)
	require.Equal(t, l.Value, l2.Value)
}

func TestSetResultOnUnknownIDIsDiscarded(t *testing.T) {
	p := New()
	ok := p.SetResult(42, "stray")
	require.False(t, ok)
}

func TestReleaseIsIdempotentAndDoesNotOverwriteResult(t *testing.T) {
	p := New()
	l, err := p.Acquire(context.Background(), time.Minute)
	require.NoError(t, err)

	p.SetResult(l.Value, "first")
	l.Release()
	require.Equal(t, "first", l.Result())

	l2, err := p.Acquire(context.Background(), time.Minute)
	require.NoError(t, err)
	require.Equal(t, l.Value, l2.Value)
}

func TestExpiryReclaimsIDForReuse(t *testing.T) {
	p := New()
	l, err := p.Acquire(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	l2, err := func() (*Lease, error) {
		for {
			if !l.expires.After(time.Now()) {
				return p.Acquire(ctx, time.Minute)
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(5 * time.Millisecond):
			}
		}
	}()
	require.NoError(t, err)
	require.Equal(t, l.Value, l2.Value)

	select {
	case <-l.Done():
		require.Nil(t, l.Result())
	default:
		t.Fatal("expired lease should be marked done")
	}
}

func TestConcurrentAcquireReleaseNeverDoubleLeases(t *testing.T) {
	p := New()
	const workers = 20
	const rounds = 50

	var wg sync.WaitGroup
	var mu sync.Mutex
	live := make(map[int]bool)
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				l, err := p.Acquire(ctx, time.Minute)
				cancel()
				if err != nil {
					errs <- err
					return
				}
				mu.Lock()
				if live[l.Value] {
					mu.Unlock()
					errs <- fmt.Errorf("id %d leased twice while still live", l.Value)
					return
				}
				live[l.Value] = true
				mu.Unlock()
				time.Sleep(time.Microsecond)
				mu.Lock()
				delete(live, l.Value)
				mu.Unlock()
				l.Release()
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("acquire failed: %v", err)
	}
}
