package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// sizedSong builds a song occupying exactly bytes of PCM.
func sizedSong(id string, bytes int64) *DecodedSong {
	frames := int(bytes / 8) // 2 channels * 4 bytes
	return &DecodedSong{ID: id, Stems: []DecodedStem{{
		ID:     id + "-stem",
		Gain:   1,
		PCM:    make([]float32, frames*2),
		Frames: frames,
	}}}
}

// testLoader counts decodes per song id.
type testLoader struct {
	mu     sync.Mutex
	counts map[string]int
	sizes  map[string]int64
	fail   map[string]error
}

func newTestLoader() *testLoader {
	return &testLoader{
		counts: make(map[string]int),
		sizes:  make(map[string]int64),
		fail:   make(map[string]error),
	}
}

func (l *testLoader) load(_ context.Context, songID string) (*DecodedSong, error) {
	l.mu.Lock()
	l.counts[songID]++
	size, ok := l.sizes[songID]
	err := l.fail[songID]
	l.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if !ok {
		size = 1024
	}
	return sizedSong(songID, size), nil
}

func (l *testLoader) loadCount(songID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[songID]
}

const mib = 1 << 20

func TestCacheHitPromotesEntry(t *testing.T) {
	loader := newTestLoader()
	loader.sizes["a"] = 4 * mib
	loader.sizes["b"] = 4 * mib
	loader.sizes["c"] = 4 * mib
	cache := NewSongCache(10*mib, loader.load, nil)

	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		if _, err := cache.GetOrLoad(ctx, id); err != nil {
			t.Fatal(err)
		}
	}

	// Touch "a" so "b" becomes least recently used.
	if _, err := cache.GetOrLoad(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if got := loader.loadCount("a"); got != 1 {
		t.Fatalf("hit must not reload, got %d loads", got)
	}

	if _, err := cache.GetOrLoad(ctx, "c"); err != nil {
		t.Fatal(err)
	}

	if !cache.Contains("a") {
		t.Fatal("recently used entry evicted")
	}
	if cache.Contains("b") {
		t.Fatal("least recently used entry survived eviction")
	}
}

func TestCacheByteBudgetEnforced(t *testing.T) {
	loader := newTestLoader()
	for i := 0; i < 8; i++ {
		loader.sizes[fmt.Sprintf("s%d", i)] = 3 * mib
	}
	cache := NewSongCache(10*mib, loader.load, nil)

	ctx := context.Background()
	for i := 0; i < 8; i++ {
		if _, err := cache.GetOrLoad(ctx, fmt.Sprintf("s%d", i)); err != nil {
			t.Fatal(err)
		}
		stats := cache.Stats()
		if stats.UsedBytes > stats.BudgetBytes {
			t.Fatalf("used %d exceeds budget %d with nothing pinned",
				stats.UsedBytes, stats.BudgetBytes)
		}
	}
}

func TestCachePinnedEntrySurvives(t *testing.T) {
	// S3: budget 100, X (80) pinned, load Y (50) then Z (50). After
	// Z the cache holds X and Z, Y is gone, and the budget warning
	// fired exactly once.
	loader := newTestLoader()
	loader.sizes["x"] = 80 * mib
	loader.sizes["y"] = 50 * mib
	loader.sizes["z"] = 50 * mib

	var warnings atomic.Int64
	cache := NewSongCache(100*mib, loader.load, func(err error) {
		if errors.Is(err, ErrBudgetBelowPinnedSet) {
			warnings.Add(1)
		}
	})

	ctx := context.Background()
	cache.Pin("x")
	if _, err := cache.GetOrLoad(ctx, "x"); err != nil {
		t.Fatal(err)
	}
	if _, err := cache.GetOrLoad(ctx, "y"); err != nil {
		t.Fatal(err)
	}
	if _, err := cache.GetOrLoad(ctx, "z"); err != nil {
		t.Fatal(err)
	}

	if !cache.Contains("x") {
		t.Fatal("pinned entry evicted")
	}
	if cache.Contains("y") {
		t.Fatal("expected y to be evicted")
	}
	if !cache.Contains("z") {
		t.Fatal("expected z to be retained")
	}
	if got := cache.Stats().UsedBytes; got != 130*mib {
		t.Fatalf("expected 130 MiB used, got %d", got)
	}
	if got := warnings.Load(); got != 1 {
		t.Fatalf("expected exactly one budget warning, got %d", got)
	}
}

func TestCacheZeroBudgetKeepsPinnedActiveSong(t *testing.T) {
	loader := newTestLoader()
	loader.sizes["active"] = 10 * mib
	cache := NewSongCache(50*mib, loader.load, nil)

	ctx := context.Background()
	cache.Pin("active")
	if _, err := cache.GetOrLoad(ctx, "active"); err != nil {
		t.Fatal(err)
	}

	cache.SetBudget(0)
	if !cache.Contains("active") {
		t.Fatal("zero budget must not evict the pinned active song")
	}
}

func TestCacheUnpinAllowsEviction(t *testing.T) {
	loader := newTestLoader()
	loader.sizes["a"] = 60 * mib
	loader.sizes["b"] = 60 * mib
	cache := NewSongCache(100*mib, loader.load, nil)

	ctx := context.Background()
	cache.Pin("a")
	if _, err := cache.GetOrLoad(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if _, err := cache.GetOrLoad(ctx, "b"); err != nil {
		t.Fatal(err)
	}

	cache.Unpin("a")
	if cache.Contains("a") {
		t.Fatal("unpinned over-budget entry must be evicted")
	}
	if !cache.Contains("b") {
		t.Fatal("most recent entry must survive")
	}
}

func TestCacheClearKeepsPins(t *testing.T) {
	loader := newTestLoader()
	cache := NewSongCache(100*mib, loader.load, nil)

	ctx := context.Background()
	cache.Pin("keep")
	cache.GetOrLoad(ctx, "keep")
	cache.GetOrLoad(ctx, "drop1")
	cache.GetOrLoad(ctx, "drop2")

	cache.Clear()

	if !cache.Contains("keep") {
		t.Fatal("clear must not evict pinned entries")
	}
	if cache.Contains("drop1") || cache.Contains("drop2") {
		t.Fatal("clear must evict unpinned entries")
	}
	if got := cache.Stats().Entries; got != 1 {
		t.Fatalf("expected 1 entry after clear, got %d", got)
	}
}

func TestCacheCoalescesConcurrentLoads(t *testing.T) {
	// S5: two concurrent requests for the same song trigger exactly
	// one decode and observe the same pointer.
	loader := newTestLoader()
	cache := NewSongCache(100*mib, loader.load, nil)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*DecodedSong, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			song, err := cache.GetOrLoad(context.Background(), "shared")
			if err != nil {
				t.Error(err)
				return
			}
			results[i] = song
		}()
	}
	wg.Wait()

	if got := loader.loadCount("shared"); got != 1 {
		t.Fatalf("expected one decode, got %d", got)
	}
	for i := 1; i < callers; i++ {
		if results[i] != results[0] {
			t.Fatalf("caller %d observed a different pointer", i)
		}
	}
}

func TestCacheLoadFailureNotCached(t *testing.T) {
	loader := newTestLoader()
	wantErr := errors.New("decode exploded")
	loader.fail["bad"] = wantErr
	cache := NewSongCache(100*mib, loader.load, nil)

	ctx := context.Background()
	if _, err := cache.GetOrLoad(ctx, "bad"); !errors.Is(err, wantErr) {
		t.Fatalf("expected load error, got %v", err)
	}
	if cache.Contains("bad") {
		t.Fatal("failed load must not populate the cache")
	}

	// A retry reaches the loader again.
	loader.mu.Lock()
	delete(loader.fail, "bad")
	loader.mu.Unlock()
	if _, err := cache.GetOrLoad(ctx, "bad"); err != nil {
		t.Fatal(err)
	}
	if got := loader.loadCount("bad"); got != 2 {
		t.Fatalf("expected retry to decode again, got %d loads", got)
	}
}

func TestCacheEvictedSongStaysUsable(t *testing.T) {
	loader := newTestLoader()
	loader.sizes["a"] = 8 * mib
	loader.sizes["b"] = 8 * mib
	cache := NewSongCache(10*mib, loader.load, nil)

	ctx := context.Background()
	song, err := cache.GetOrLoad(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cache.GetOrLoad(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	if cache.Contains("a") {
		t.Fatal("expected a to be evicted")
	}

	// The caller's reference is unaffected by eviction.
	if song.Frames() == 0 || len(song.Stems[0].PCM) == 0 {
		t.Fatal("evicted song's buffers must remain valid for holders")
	}
}

func TestCacheReloadAfterEvictIsIdentical(t *testing.T) {
	loader := newTestLoader()
	loader.sizes["a"] = 4 * mib
	cache := NewSongCache(10*mib, loader.load, nil)

	ctx := context.Background()
	first, err := cache.GetOrLoad(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	cache.Evict("a")
	second, err := cache.GetOrLoad(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}

	if first == second {
		t.Fatal("expected a fresh decode after eviction")
	}
	if first.Bytes() != second.Bytes() || first.Frames() != second.Frames() {
		t.Fatal("reload must produce an identical song shape")
	}
}

func TestCacheEvictCancelsInflightLoad(t *testing.T) {
	started := make(chan struct{})
	load := func(ctx context.Context, songID string) (*DecodedSong, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	cache := NewSongCache(mib, load, nil)

	errCh := make(chan error, 1)
	go func() {
		_, err := cache.GetOrLoad(context.Background(), "slow")
		errCh <- err
	}()

	<-started
	cache.Evict("slow")

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("cancelled load must fail")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("evict did not cancel the in-flight load")
	}
	if cache.Contains("slow") {
		t.Fatal("cancelled load must not populate the cache")
	}
}

func TestCacheStats(t *testing.T) {
	loader := newTestLoader()
	loader.sizes["a"] = 2 * mib
	cache := NewSongCache(64*mib, loader.load, nil)

	cache.GetOrLoad(context.Background(), "a")
	stats := cache.Stats()
	if stats.Entries != 1 {
		t.Fatalf("expected 1 entry, got %d", stats.Entries)
	}
	if stats.UsedBytes != 2*mib {
		t.Fatalf("expected %d used bytes, got %d", 2*mib, stats.UsedBytes)
	}
	if stats.BudgetBytes != 64*mib {
		t.Fatalf("expected %d budget bytes, got %d", 64*mib, stats.BudgetBytes)
	}
}
