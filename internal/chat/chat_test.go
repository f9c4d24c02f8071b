package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/erilali/gameroom/internal/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestService(clock *fakeClock, blocked ...string) *Service {
	limiter := NewMemoryLimiter(3, 10*time.Second, clock.Now)
	return NewService(Config{MaxHistory: 100, DuplicateThreshold: 5 * time.Second, BlockedWords: blocked}, limiter, clock.Now, nil)
}

func TestMemoryLimiter(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := NewMemoryLimiter(3, 10*time.Second, clock.Now)

	for i := 0; i < 3; i++ {
		d, err := l.Allow(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "call %d", i+1)
		clock.Advance(time.Second)
	}

	d, err := l.Allow(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 7*time.Second, d.Cooldown)

	// other authors have their own window
	d, _ = l.Allow(ctx, "bob")
	assert.True(t, d.Allowed)

	clock.Advance(11 * time.Second)
	d, _ = l.Allow(ctx, "alice")
	assert.True(t, d.Allowed)
}

func TestMemoryLimiter_RejectedCallsAreNotRecorded(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := NewMemoryLimiter(1, 10*time.Second, clock.Now)

	d, _ := l.Allow(ctx, "alice")
	require.True(t, d.Allowed)
	for i := 0; i < 5; i++ {
		clock.Advance(time.Second)
		d, _ = l.Allow(ctx, "alice")
		require.False(t, d.Allowed)
	}

	// only the first send counts, so the window frees 10s after it
	clock.Advance(5*time.Second + time.Millisecond)
	d, _ = l.Allow(ctx, "alice")
	assert.True(t, d.Allowed)
}

func TestMemoryLimiter_Forget(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter(1, time.Minute, nil)

	_, _ = l.Allow(ctx, "alice")
	assert.Equal(t, 1, l.Tracked())
	require.NoError(t, l.Forget(ctx, "alice"))
	assert.Equal(t, 0, l.Tracked())

	d, _ := l.Allow(ctx, "alice")
	assert.True(t, d.Allowed)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "hello world x", Sanitize("  <b>hello</b> world <script>x</script> "))
	assert.Equal(t, 500, len([]rune(Sanitize(strings.Repeat("好", 600)))))
}

func TestFilter(t *testing.T) {
	s := newTestService(newFakeClock(), "Cheat")

	tests := []struct {
		name string
		text string
		want string
		ok   bool
	}{
		{name: "plain", text: "  good game ", want: "good game", ok: true},
		{name: "empty", text: "   ", ok: false},
		{name: "blocked word any case", text: "no cheating", ok: false},
		{name: "repeated long", text: "aaaaaa", ok: false},
		{name: "repeated short", text: "aaaaa", want: "aaaaa", ok: true},
		{name: "repeated wide runes", text: "哈哈哈哈哈哈", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason, ok := s.Filter(tt.text)
			assert.Equal(t, tt.ok, ok, reason)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestSend_Pipeline(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s := newTestService(clock)

	c, err := s.Send(ctx, "room1", "alice", "<i>hi</i> all")
	require.NoError(t, err)
	assert.Equal(t, "hi all", c.Text)
	assert.Equal(t, "alice", c.Author)

	t.Run("duplicate from same author", func(t *testing.T) {
		clock.Advance(time.Second)
		_, err := s.Send(ctx, "room1", "alice", "hi all")
		r, ok := message.AsRejection(err)
		require.True(t, ok)
		assert.Equal(t, message.CodeDuplicateComment, r.Code)
	})

	t.Run("same text from another author", func(t *testing.T) {
		_, err := s.Send(ctx, "room1", "bob", "hi all")
		require.NoError(t, err)
	})

	t.Run("duplicate after threshold is fine", func(t *testing.T) {
		clock.Advance(6 * time.Second)
		_, err := s.Send(ctx, "room1", "alice", "hi all")
		require.NoError(t, err)
	})

	t.Run("filtered text leaves history untouched", func(t *testing.T) {
		before := len(s.Recent("room1", 0))
		clock.Advance(11 * time.Second)
		_, err := s.Send(ctx, "room1", "carol", "!!!!!!!!")
		r, ok := message.AsRejection(err)
		require.True(t, ok)
		assert.Equal(t, message.CodeCommentFiltered, r.Code)
		assert.Len(t, s.Recent("room1", 0), before)
	})

	stats := s.Stats()
	assert.Equal(t, int64(3), stats.Accepted)
	assert.Equal(t, int64(1), stats.Duplicates)
	assert.Equal(t, int64(1), stats.Filtered)
	assert.Equal(t, 1, stats.ActiveRooms)
}

func TestSend_RateLimited(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s := newTestService(clock)

	for i := 0; i < 3; i++ {
		_, err := s.Send(ctx, "room1", "alice", fmt.Sprintf("msg %d", i))
		require.NoError(t, err)
	}
	_, err := s.Send(ctx, "room1", "alice", "msg 4")
	r, ok := message.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, message.CodeRateLimited, r.Code)
	assert.Equal(t, 10, r.Cooldown)
	assert.Len(t, s.Recent("room1", 0), 3)

	clock.Advance(10*time.Second + time.Millisecond)
	_, err = s.Send(ctx, "room1", "alice", "msg 5")
	require.NoError(t, err)
}

func TestHistory_Ring(t *testing.T) {
	h := NewHistory(3)
	base := time.Now()
	for i := 0; i < 5; i++ {
		h.Add(Comment{RoomID: "r", Author: "a", Text: fmt.Sprint(i), Timestamp: base.Add(time.Duration(i) * time.Second)})
	}

	recent := h.Recent("r", 0)
	require.Len(t, recent, 3)
	assert.Equal(t, "2", recent[0].Text)
	assert.Equal(t, "4", recent[2].Text)

	last := h.Recent("r", 1)
	require.Len(t, last, 1)
	assert.Equal(t, "4", last[0].Text)

	assert.Empty(t, h.Recent("missing", 10))

	h.Clear("r")
	assert.Equal(t, 0, h.Rooms())
}

func TestHistory_IsDuplicateStopsAtOldEntries(t *testing.T) {
	h := NewHistory(10)
	now := time.Now()
	h.Add(Comment{RoomID: "r", Author: "a", Text: "same", Timestamp: now.Add(-10 * time.Second)})
	h.Add(Comment{RoomID: "r", Author: "b", Text: "other", Timestamp: now.Add(-time.Second)})

	assert.False(t, h.IsDuplicate("r", "a", "same", 5*time.Second, now))
	assert.True(t, h.IsDuplicate("r", "b", "other", 5*time.Second, now))
	assert.False(t, h.IsDuplicate("r", "a", "other", 5*time.Second, now))
}

func TestHistory_AddUnlessDuplicate(t *testing.T) {
	h := NewHistory(10)
	now := time.Now()
	c := Comment{RoomID: "r", Author: "a", Text: "gg", Timestamp: now}
	assert.True(t, h.AddUnlessDuplicate(c, 5*time.Second))
	c.Timestamp = now.Add(time.Second)
	assert.False(t, h.AddUnlessDuplicate(c, 5*time.Second))
	c.Timestamp = now.Add(6 * time.Second)
	assert.True(t, h.AddUnlessDuplicate(c, 5*time.Second))
	assert.Len(t, h.Recent("r", 0), 2)
}

func TestSend_ConcurrentDuplicatesAcceptOnce(t *testing.T) {
	clock := newFakeClock()
	s := newTestService(clock)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Send(context.Background(), "room1", "alice", "same words")
		}()
	}
	wg.Wait()

	assert.Len(t, s.Recent("room1", 0), 1)
	stats := s.Stats()
	assert.Equal(t, int64(1), stats.Accepted)
	assert.Equal(t, int64(2), stats.Duplicates)
}
