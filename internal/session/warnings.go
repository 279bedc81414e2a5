package session

import (
	"time"

	"github.com/RubachokBoss/interview-proctoring/internal/models"
)

// warningBuffer keeps the most recent warnings, each visible until it expires.
type warningBuffer struct {
	items    []models.WarningView
	capacity int
	ttl      time.Duration
}

func newWarningBuffer(capacity int, ttl time.Duration) *warningBuffer {
	return &warningBuffer{
		items:    make([]models.WarningView, 0, capacity),
		capacity: capacity,
		ttl:      ttl,
	}
}

func (b *warningBuffer) add(message string, now time.Time) {
	b.prune(now)
	if len(b.items) == b.capacity {
		copy(b.items, b.items[1:])
		b.items = b.items[:len(b.items)-1]
	}
	b.items = append(b.items, models.WarningView{
		Message:   message,
		CreatedAt: now,
		ExpiresAt: now.Add(b.ttl),
	})
}

func (b *warningBuffer) active(now time.Time) []models.WarningView {
	b.prune(now)
	out := make([]models.WarningView, len(b.items))
	copy(out, b.items)
	return out
}

func (b *warningBuffer) prune(now time.Time) {
	n := 0
	for _, w := range b.items {
		if now.Before(w.ExpiresAt) {
			b.items[n] = w
			n++
		}
	}
	b.items = b.items[:n]
}
