package imagecache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// countingLoader returns fixed bytes and counts calls.
type countingLoader struct {
	calls atomic.Int32
	err   error
	delay time.Duration
}

func (l *countingLoader) load(_ context.Context, assetID string) ([]byte, string, error) {
	l.calls.Add(1)
	if l.delay > 0 {
		time.Sleep(l.delay)
	}
	if l.err != nil {
		return nil, "", l.err
	}
	return []byte("image:" + assetID), "image/png", nil
}

func TestAcquire_CachesHandle(t *testing.T) {
	c := New("/api/v1/sessions/s1/assets")
	loader := &countingLoader{}
	ctx := context.Background()

	h1, err := c.Acquire(ctx, "plan-1", loader.load)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	h2, err := c.Acquire(ctx, "plan-1", loader.load)
	if err != nil {
		t.Fatalf("second Acquire() error = %v", err)
	}

	if loader.calls.Load() != 1 {
		t.Errorf("loader calls = %d, want 1", loader.calls.Load())
	}
	if h1 != h2 {
		t.Errorf("handles differ: %+v vs %+v", h1, h2)
	}
	if !strings.HasPrefix(h1.URL, "/api/v1/sessions/s1/assets/") || !strings.HasSuffix(h1.URL, h1.Token) {
		t.Errorf("URL = %q", h1.URL)
	}

	e, ok := c.Lookup(h1.Token)
	if !ok || string(e.Data) != "image:plan-1" || e.ContentType != "image/png" {
		t.Errorf("Lookup() = %+v, %v", e, ok)
	}
}

func TestRelease_ThenReacquireReloads(t *testing.T) {
	c := New("/assets")
	loader := &countingLoader{}
	ctx := context.Background()

	h1, err := c.Acquire(ctx, "plan-1", loader.load)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	c.Release("plan-1")
	if _, ok := c.Lookup(h1.Token); ok {
		t.Error("released token still resolves")
	}
	if c.Len() != 0 {
		t.Errorf("Len() after release = %d", c.Len())
	}

	// Double release and release of an unknown asset are no-ops.
	c.Release("plan-1")
	c.Release("never-loaded")

	h2, err := c.Acquire(ctx, "plan-1", loader.load)
	if err != nil {
		t.Fatalf("re-Acquire() error = %v", err)
	}
	if loader.calls.Load() != 2 {
		t.Errorf("loader calls = %d, want 2", loader.calls.Load())
	}
	if h2.Token == h1.Token {
		t.Error("re-acquired handle reuses the revoked token")
	}
}

func TestAcquire_LoaderFailure(t *testing.T) {
	c := New("/assets")
	boom := errors.New("asset service down")
	var observed error
	c.SetOnLoad(func(_ string, err error) { observed = err })

	_, err := c.Acquire(context.Background(), "plan-1", (&countingLoader{err: boom}).load)
	if !errors.Is(err, boom) {
		t.Fatalf("Acquire() error = %v, want %v", err, boom)
	}
	if !errors.Is(observed, boom) {
		t.Errorf("onLoad saw %v", observed)
	}
	if c.Len() != 0 {
		t.Errorf("failed load left %d entries", c.Len())
	}

	empty := func(context.Context, string) ([]byte, string, error) { return nil, "", nil }
	if _, err := c.Acquire(context.Background(), "plan-2", empty); !errors.Is(err, ErrEmptyAsset) {
		t.Errorf("Acquire() of empty asset error = %v, want ErrEmptyAsset", err)
	}
}

func TestAcquire_ConcurrentSharesLoad(t *testing.T) {
	c := New("/assets")
	loader := &countingLoader{delay: 20 * time.Millisecond}

	const n = 10
	handles := make([]Handle, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := c.Acquire(context.Background(), "plan-1", loader.load)
			if err != nil {
				t.Errorf("Acquire() error = %v", err)
			}
			handles[i] = h
		}(i)
	}
	wg.Wait()

	if loader.calls.Load() != 1 {
		t.Errorf("loader calls = %d, want 1", loader.calls.Load())
	}
	for i := 1; i < n; i++ {
		if handles[i] != handles[0] {
			t.Errorf("handle %d differs", i)
		}
	}
}

func TestRelease_DuringLoadDoesNotResurrect(t *testing.T) {
	c := New("/assets")
	started := make(chan struct{})
	proceed := make(chan struct{})
	loader := func(context.Context, string) ([]byte, string, error) {
		close(started)
		<-proceed
		return []byte("x"), "image/png", nil
	}

	done := make(chan Handle)
	go func() {
		h, err := c.Acquire(context.Background(), "plan-1", loader)
		if err != nil {
			t.Errorf("Acquire() error = %v", err)
		}
		done <- h
	}()

	<-started
	c.Release("plan-1")
	close(proceed)
	h := <-done

	if _, ok := c.Lookup(h.Token); ok {
		t.Error("handle installed although the asset was released during the load")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestReleaseAll(t *testing.T) {
	c := New("/assets")
	loader := &countingLoader{}
	ctx := context.Background()

	var tokens []string
	for _, id := range []string{"a", "b", "c"} {
		h, err := c.Acquire(ctx, id, loader.load)
		if err != nil {
			t.Fatalf("Acquire(%s) error = %v", id, err)
		}
		tokens = append(tokens, h.Token)
	}

	if n := c.ReleaseAll(); n != 3 {
		t.Errorf("ReleaseAll() = %d, want 3", n)
	}
	for _, tok := range tokens {
		if _, ok := c.Lookup(tok); ok {
			t.Errorf("token %s still resolves", tok)
		}
	}
	if n := c.ReleaseAll(); n != 0 {
		t.Errorf("second ReleaseAll() = %d, want 0", n)
	}
}

func TestAcquire_CancelledWaiterDoesNotFailSharedLoad(t *testing.T) {
	c := New("/assets")
	var calls atomic.Int32
	started := make(chan struct{})
	proceed := make(chan struct{})
	loader := func(ctx context.Context, assetID string) ([]byte, string, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-proceed
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		return []byte("image:" + assetID), "image/png", nil
	}

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Acquire(first, "plan-1", loader)
		firstErr <- err
	}()
	<-started

	second := make(chan Handle, 1)
	go func() {
		h, err := c.Acquire(context.Background(), "plan-1", loader)
		if err != nil {
			t.Errorf("second Acquire() error = %v", err)
		}
		second <- h
	}()

	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Errorf("first Acquire() error = %v, want context.Canceled", err)
	}
	close(proceed)

	h := <-second
	if _, ok := c.Lookup(h.Token); !ok {
		t.Error("surviving caller got a handle that does not resolve")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("loader calls = %d, want 1", got)
	}
}

func TestAcquire_LoadTimeout(t *testing.T) {
	c := New("/assets")
	c.SetLoadTimeout(10 * time.Millisecond)
	c.SetLoadTimeout(0) // ignored

	loader := func(ctx context.Context, _ string) ([]byte, string, error) {
		<-ctx.Done()
		return nil, "", ctx.Err()
	}
	if _, err := c.Acquire(context.Background(), "plan-1", loader); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Acquire() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestRelease_NextAcquireStartsFreshLoad(t *testing.T) {
	c := New("/assets")
	var calls atomic.Int32
	started := make(chan struct{}, 2)
	proceed := make(chan struct{})
	loader := func(context.Context, string) ([]byte, string, error) {
		calls.Add(1)
		started <- struct{}{}
		<-proceed
		return []byte("x"), "image/png", nil
	}

	go func() { _, _ = c.Acquire(context.Background(), "plan-1", loader) }()
	<-started
	c.Release("plan-1")

	done := make(chan Handle, 1)
	go func() {
		h, err := c.Acquire(context.Background(), "plan-1", loader)
		if err != nil {
			t.Errorf("Acquire() after release error = %v", err)
		}
		done <- h
	}()
	<-started
	close(proceed)

	h := <-done
	if _, ok := c.Lookup(h.Token); !ok {
		t.Error("handle acquired after release does not resolve")
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("loader calls = %d, want 2", got)
	}
}
