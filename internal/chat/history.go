// internal/chat/history.go
package chat

import (
	"sync"
	"time"
)

// Comment is one accepted chat line.
type Comment struct {
	RoomID    string    `json:"room_id"`
	Author    string    `json:"author"`
	Text      string    `json:"comment"`
	Timestamp time.Time `json:"timestamp"`
}

// ring keeps the most recent comments of a room, oldest overwritten first.
type ring struct {
	buf   []Comment
	start int
	size  int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]Comment, capacity)}
}

func (r *ring) add(c Comment) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = c
		r.size++
		return
	}
	r.buf[r.start] = c
	r.start = (r.start + 1) % len(r.buf)
}

// at returns the i-th oldest comment.
func (r *ring) at(i int) Comment {
	return r.buf[(r.start+i)%len(r.buf)]
}

// History stores a bounded ring of comments per room.
type History struct {
	mu       sync.RWMutex
	capacity int
	rooms    map[string]*ring
}

// NewHistory keeps up to capacity comments per room.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = 100
	}
	return &History{capacity: capacity, rooms: make(map[string]*ring)}
}

// Add appends c to its room's ring.
func (h *History) Add(c Comment) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[c.RoomID]
	if !ok {
		r = newRing(h.capacity)
		h.rooms[c.RoomID] = r
	}
	r.add(c)
}

// IsDuplicate scans the room newest first and stops at the first comment older than
// threshold. It reports whether a scanned comment has the same author and text.
func (h *History) IsDuplicate(roomID, author, text string, threshold time.Duration, now time.Time) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.duplicate(roomID, author, text, threshold, now)
}

// AddUnlessDuplicate appends c unless the same author sent the same text within threshold.
// The check and the append happen under one lock.
func (h *History) AddUnlessDuplicate(c Comment, threshold time.Duration) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.duplicate(c.RoomID, c.Author, c.Text, threshold, c.Timestamp) {
		return false
	}
	r, ok := h.rooms[c.RoomID]
	if !ok {
		r = newRing(h.capacity)
		h.rooms[c.RoomID] = r
	}
	r.add(c)
	return true
}

func (h *History) duplicate(roomID, author, text string, threshold time.Duration, now time.Time) bool {
	r, ok := h.rooms[roomID]
	if !ok {
		return false
	}
	for i := r.size - 1; i >= 0; i-- {
		c := r.at(i)
		if now.Sub(c.Timestamp) > threshold {
			break
		}
		if c.Author == author && c.Text == text {
			return true
		}
	}
	return false
}

// Recent returns up to limit of the newest comments of a room, oldest first.
func (h *History) Recent(roomID string, limit int) []Comment {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.rooms[roomID]
	if !ok {
		return []Comment{}
	}
	if limit <= 0 || limit > r.size {
		limit = r.size
	}
	out := make([]Comment, 0, limit)
	for i := r.size - limit; i < r.size; i++ {
		out = append(out, r.at(i))
	}
	return out
}

// Clear drops a room's ring.
func (h *History) Clear(roomID string) {
	h.mu.Lock()
	delete(h.rooms, roomID)
	h.mu.Unlock()
}

// Rooms returns how many rooms hold comments.
func (h *History) Rooms() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}
