package diskcache

import (
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plexfront/internal/storage"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type homeFeed struct {
	Titles []string `json:"titles"`
}

func newTestCache(t *testing.T, store *storage.Store, clock *testClock, version int) *Cache[homeFeed] {
	t.Helper()
	return New[homeFeed](store, Options{
		Namespace: "plex",
		Version:   version,
		Policy:    Policy{FreshFor: 30 * time.Second, StaleFor: 5 * time.Minute},
		Now:       clock.Now,
	})
}

func TestFreshnessWindows(t *testing.T) {
	clock := newTestClock()
	store := storage.New(afero.NewMemMapFs())
	c := newTestCache(t, store, clock, 1)

	c.Set("home", homeFeed{Titles: []string{"Dune"}})

	res, ok := c.Get("home")
	require.True(t, ok)
	assert.False(t, res.IsStale)
	assert.Equal(t, []string{"Dune"}, res.Payload.Titles)
	assert.Equal(t, clock.Now().Unix(), res.CachedAtSeconds())

	clock.Advance(29 * time.Second)
	res, ok = c.Get("home")
	require.True(t, ok)
	assert.False(t, res.IsStale, "age below fresh window must not be stale")

	clock.Advance(time.Second) // exactly 30s
	res, ok = c.Get("home")
	require.True(t, ok)
	assert.True(t, res.IsStale, "age at fresh window boundary is stale")

	clock.Advance(4*time.Minute + 29*time.Second) // 4m59s
	res, ok = c.Get("home")
	require.True(t, ok)
	assert.True(t, res.IsStale)

	clock.Advance(time.Second) // exactly 5m
	_, ok = c.Get("home")
	assert.False(t, ok, "age at stale window boundary is a miss")
}

func TestPolicyState(t *testing.T) {
	p := Policy{FreshFor: time.Minute, StaleFor: time.Hour}
	cases := []struct {
		age  time.Duration
		want State
	}{
		{-time.Second, StateFresh},
		{0, StateFresh},
		{59 * time.Second, StateFresh},
		{time.Minute, StateStale},
		{59 * time.Minute, StateStale},
		{time.Hour, StateExpired},
		{48 * time.Hour, StateExpired},
	}
	for _, tc := range cases {
		if got := p.State(tc.age); got != tc.want {
			t.Fatalf("State(%v) = %v, want %v", tc.age, got, tc.want)
		}
	}

	inverted := Policy{FreshFor: time.Hour, StaleFor: time.Minute}
	if got := inverted.State(30 * time.Minute); got != StateFresh {
		t.Fatalf("stale window shorter than fresh should be normalized, got %v", got)
	}
	if got := inverted.State(time.Hour); got != StateExpired {
		t.Fatalf("expected expired at fresh boundary for normalized policy, got %v", got)
	}
}

func TestVersionGuard(t *testing.T) {
	clock := newTestClock()
	store := storage.New(afero.NewMemMapFs())

	v1 := newTestCache(t, store, clock, 1)
	v1.Set("home", homeFeed{Titles: []string{"Alien"}})

	v2 := newTestCache(t, store, clock, 2)
	_, ok := v2.Get("home")
	assert.False(t, ok, "entry written with version 1 must miss for version 2 reader")

	_, ok = v1.Get("home")
	assert.True(t, ok)
}

func TestCorruptEntryIsMiss(t *testing.T) {
	clock := newTestClock()
	mem := afero.NewMemMapFs()
	store := storage.New(mem)
	c := newTestCache(t, store, clock, 1)

	require.NoError(t, afero.WriteFile(mem, "plex/home.json", []byte(`{"version":1,"payload":`), 0o644))
	_, ok := c.Get("home")
	assert.False(t, ok)

	_, ok = c.Get("never-written")
	assert.False(t, ok)
}

func TestWriteFailureIsSwallowed(t *testing.T) {
	clock := newTestClock()
	store := storage.New(afero.NewReadOnlyFs(afero.NewMemMapFs()))
	c := newTestCache(t, store, clock, 1)

	c.Set("home", homeFeed{Titles: []string{"x"}})
	_, ok := c.Get("home")
	assert.False(t, ok)
	assert.Error(t, c.Put("home", homeFeed{}))
}

func TestInvalidateAndClear(t *testing.T) {
	clock := newTestClock()
	store := storage.New(afero.NewMemMapFs())
	c := newTestCache(t, store, clock, 1)

	c.Set("a", homeFeed{})
	c.Set("b", homeFeed{})
	c.Set("c", homeFeed{})

	c.Invalidate("a")
	_, ok := c.Get("a")
	assert.False(t, ok)

	removed, err := c.Clear()
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestUnsafeKeysAreHashed(t *testing.T) {
	clock := newTestClock()
	mem := afero.NewMemMapFs()
	c := newTestCache(t, storage.New(mem), clock, 1)

	c.Set("../../etc/passwd", homeFeed{Titles: []string{"nope"}})
	res, ok := c.Get("../../etc/passwd")
	require.True(t, ok)
	assert.Equal(t, []string{"nope"}, res.Payload.Titles)

	exists, _ := afero.Exists(mem, "plex/"+HashKey("../../etc/passwd")+".json")
	assert.True(t, exists)
}

func TestUserKeyIsolatesTokens(t *testing.T) {
	a := UserKey("watchlist", "token-a")
	b := UserKey("watchlist", "token-b")
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, UserKey("watchlist", "token-a"))
	assert.NotContains(t, a, "token-a")
	assert.Regexp(t, `^watchlist-[0-9a-f]{16}$`, a)
}
