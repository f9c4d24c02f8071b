// internal/chat/chat.go
package chat

import (
	"context"
	"math"
	"regexp"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/erilali/gameroom/internal/logger"
	"github.com/erilali/gameroom/internal/message"
)

const maxCommentLength = 500

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// Sanitize caps text at 500 characters, strips markup tags and trims whitespace.
func Sanitize(text string) string {
	if utf8.RuneCountInString(text) > maxCommentLength {
		text = string([]rune(text)[:maxCommentLength])
	}
	return strings.TrimSpace(tagPattern.ReplaceAllString(text, ""))
}

// Config holds the send pipeline settings.
type Config struct {
	MaxHistory         int
	DuplicateThreshold time.Duration
	BlockedWords       []string
}

// Stats are counters over the service lifetime.
type Stats struct {
	Accepted     int64 `json:"accepted"`
	RateLimited  int64 `json:"rate_limited"`
	Filtered     int64 `json:"filtered"`
	Duplicates   int64 `json:"duplicates"`
	ActiveRooms  int   `json:"active_rooms"`
	BlockedWords int   `json:"blocked_words"`
}

// Service runs the comment pipeline shared by every game: rate limit, content filter, duplicate
// check, then append to the room history.
type Service struct {
	limiter   Limiter
	history   *History
	threshold time.Duration
	blocked   []string
	now       func() time.Time
	logger    *logger.Logger

	accepted    atomic.Int64
	rateLimited atomic.Int64
	filtered    atomic.Int64
	duplicates  atomic.Int64
}

// NewService builds the pipeline. A nil now uses time.Now.
func NewService(cfg Config, limiter Limiter, now func() time.Time, log *logger.Logger) *Service {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logger.NewNop()
	}
	blocked := make([]string, 0, len(cfg.BlockedWords))
	for _, w := range cfg.BlockedWords {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			blocked = append(blocked, w)
		}
	}
	threshold := cfg.DuplicateThreshold
	if threshold <= 0 {
		threshold = 5 * time.Second
	}
	return &Service{
		limiter:   limiter,
		history:   NewHistory(cfg.MaxHistory),
		threshold: threshold,
		blocked:   blocked,
		now:       now,
		logger:    log,
	}
}

// Filter rejects empty text, blocked words and long runs of a single repeated character.
// It returns the trimmed text, or the rejection reason and false.
func (s *Service) Filter(text string) (string, string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", "comment is empty", false
	}
	lower := strings.ToLower(text)
	for _, w := range s.blocked {
		if strings.Contains(lower, w) {
			return "", "contains a blocked word", false
		}
	}
	if utf8.RuneCountInString(text) > 5 && singleRune(text) {
		return "", "repeated characters", false
	}
	return text, "", true
}

func singleRune(text string) bool {
	first, _ := utf8.DecodeRuneInString(text)
	for _, r := range text {
		if r != first {
			return false
		}
	}
	return true
}

// Send pushes raw through the pipeline. A failed step returns a Rejection and leaves the
// history untouched.
func (s *Service) Send(ctx context.Context, roomID, author, raw string) (Comment, error) {
	text := Sanitize(raw)

	decision, err := s.limiter.Allow(ctx, author)
	if err != nil {
		s.logger.Warnf("Rate window unavailable for %s: %v", author, err)
	}
	if !decision.Allowed {
		s.rateLimited.Add(1)
		wait := int(math.Ceil(decision.Cooldown.Seconds()))
		if wait < 1 {
			wait = 1
		}
		r := message.Reject(message.CodeRateLimited, "sending too fast, wait %d seconds", wait)
		r.Cooldown = wait
		return Comment{}, r
	}

	text, reason, ok := s.Filter(text)
	if !ok {
		s.filtered.Add(1)
		return Comment{}, message.Reject(message.CodeCommentFiltered, "comment filtered: %s", reason)
	}

	c := Comment{RoomID: roomID, Author: author, Text: text, Timestamp: s.now()}
	if !s.history.AddUnlessDuplicate(c, s.threshold) {
		s.duplicates.Add(1)
		return Comment{}, message.Reject(message.CodeDuplicateComment, "duplicate comment")
	}
	s.accepted.Add(1)
	return c, nil
}

// Recent returns up to limit of a room's newest comments, oldest first.
func (s *Service) Recent(roomID string, limit int) []Comment {
	return s.history.Recent(roomID, limit)
}

// ClearRoom drops a room's history when the room goes away.
func (s *Service) ClearRoom(roomID string) {
	s.history.Clear(roomID)
}

// Forget drops an author's rate window when the session disconnects.
func (s *Service) Forget(ctx context.Context, author string) {
	if err := s.limiter.Forget(ctx, author); err != nil {
		s.logger.Warnf("Failed to forget rate window of %s: %v", author, err)
	}
}

// Stats reports lifetime counters.
func (s *Service) Stats() Stats {
	return Stats{
		Accepted:     s.accepted.Load(),
		RateLimited:  s.rateLimited.Load(),
		Filtered:     s.filtered.Load(),
		Duplicates:   s.duplicates.Load(),
		ActiveRooms:  s.history.Rooms(),
		BlockedWords: len(s.blocked),
	}
}
