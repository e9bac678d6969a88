package findlib

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"example.org/hashfinder/pool"
)

type recorder struct {
	mu      sync.Mutex
	actions []interface{}
}

func (r *recorder) RecordAction(a interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, a)
}

func (r *recorder) of(match func(interface{}) bool) []interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []interface{}
	for _, a := range r.actions {
		if match(a) {
			out = append(out, a)
		}
	}
	return out
}

func mod(m uint64) func(string) string {
	return func(s string) string {
		n, _ := strconv.ParseUint(s, 10, 32)
		return strconv.FormatUint(n%m, 10)
	}
}

func testPoolConfig() pool.Config {
	cfg := pool.DefaultConfig()
	cfg.Workers = 3
	cfg.Model = pool.Tasks
	return cfg
}

func TestFindDeliversMatchesInOrder(t *testing.T) {
	f := NewFinder()
	ch, err := f.Initialize(testPoolConfig(), 2, nil, pool.WithDigest(mod(4)))
	require.NoError(t, err)

	rec := &recorder{}
	require.NoError(t, f.Find(context.Background(), rec, 1, 5))

	var got []FindResult
	for len(got) < 5 {
		got = append(got, <-ch)
	}

	res, err := f.Wait()
	require.NoError(t, err)
	require.Len(t, res.Matches, 5)
	for i, m := range res.Matches {
		assert.Equal(t, FindResult{ZeroRunLength: 1, Candidate: m.Candidate, Digest: m.Digest}, got[i])
		assert.Zero(t, m.Candidate%4)
	}

	assert.Len(t, rec.of(func(a interface{}) bool { _, ok := a.(FinderSearchBegin); return ok }), 1)
	assert.Len(t, rec.of(func(a interface{}) bool { _, ok := a.(FinderMatch); return ok }), 5)
	complete := rec.of(func(a interface{}) bool { _, ok := a.(FinderSearchComplete); return ok })
	require.Len(t, complete, 1)
	assert.Equal(t, 5, complete[0].(FinderSearchComplete).Matches)

	require.NoError(t, f.Close())
	_, open := <-ch
	assert.False(t, open)
}

func TestFindRequiresInitialize(t *testing.T) {
	f := NewFinder()
	assert.ErrorIs(t, f.Find(context.Background(), nil, 1, 1), ErrNotInitialized)
	assert.ErrorIs(t, f.Close(), ErrNotInitialized)

	_, err := f.Wait()
	assert.ErrorIs(t, err, ErrIdle)
}

func TestFindRejectsBadConfig(t *testing.T) {
	f := NewFinder()
	cfg := testPoolConfig()
	cfg.Workers = 0
	_, err := f.Initialize(cfg, 1, nil)
	require.NoError(t, err)
	assert.Error(t, f.Find(context.Background(), nil, 1, 1))
	require.NoError(t, f.Close())
}

func TestCloseCancelsRunningSearch(t *testing.T) {
	f := NewFinder()
	_, err := f.Initialize(testPoolConfig(), 0, nil, pool.WithDigest(func(string) string { return "1" }))
	require.NoError(t, err)

	require.NoError(t, f.Find(context.Background(), nil, 1, 1))
	assert.ErrorIs(t, f.Find(context.Background(), nil, 1, 1), ErrBusy)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, f.Close())

	res, err := f.Wait()
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Matches)
}

func TestWaitDoesNotNeedReader(t *testing.T) {
	f := NewFinder()
	ch, err := f.Initialize(testPoolConfig(), 2, nil, pool.WithDigest(mod(2)))
	require.NoError(t, err)
	require.NoError(t, f.Find(context.Background(), nil, 1, 5))

	waited := make(chan struct{})
	var res *pool.Result
	go func() {
		defer close(waited)
		res, err = f.Wait()
	}()
	select {
	case <-waited:
	case <-time.After(5 * time.Second):
		t.Fatal("Wait blocked on a full notify channel")
	}
	require.NoError(t, err)
	require.Len(t, res.Matches, 5)

	for _, m := range res.Matches {
		got := <-ch
		assert.Equal(t, m.Candidate, got.Candidate)
		assert.Equal(t, m.Digest, got.Digest)
	}
	require.NoError(t, f.Close())
}

func TestSuccessiveSearchesDeliverInOrder(t *testing.T) {
	f := NewFinder()
	ch, err := f.Initialize(testPoolConfig(), 1, nil, pool.WithDigest(mod(3)))
	require.NoError(t, err)

	require.NoError(t, f.Find(context.Background(), nil, 1, 4))
	_, err = f.Wait()
	require.NoError(t, err)
	require.NoError(t, f.Find(context.Background(), nil, 0, 4))
	_, err = f.Wait()
	require.NoError(t, err)

	for i := 0; i < 8; i++ {
		r := <-ch
		if i < 4 {
			assert.Equal(t, uint8(1), r.ZeroRunLength)
		} else {
			assert.Equal(t, uint8(0), r.ZeroRunLength)
		}
	}
	require.NoError(t, f.Close())
}

func TestCloseDropsUnreadBacklog(t *testing.T) {
	f := NewFinder()
	ch, err := f.Initialize(testPoolConfig(), 1, nil, pool.WithDigest(mod(2)))
	require.NoError(t, err)
	require.NoError(t, f.Find(context.Background(), nil, 1, 6))
	_, err = f.Wait()
	require.NoError(t, err)

	closed := make(chan error, 1)
	go func() { closed <- f.Close() }()
	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Close blocked on undelivered matches")
	}

	n := 0
	for range ch {
		n++
	}
	assert.LessOrEqual(t, n, 1)
}

func TestInitializeDuringFind(t *testing.T) {
	f := NewFinder()
	_, err := f.Initialize(testPoolConfig(), 1, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = f.Initialize(testPoolConfig(), 1, zap.NewNop())
	}()
	require.NoError(t, f.Find(context.Background(), nil, 1, 0))
	wg.Wait()

	_, err = f.Wait()
	require.NoError(t, err)
	require.NoError(t, f.Close())
}
