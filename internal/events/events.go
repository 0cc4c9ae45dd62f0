// Package events is an in-process publish/subscribe channel used to
// cross package boundaries without direct coupling, e.g. a completed
// workout session announcing itself so the social feed can create a
// post for it.
package events

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// WorkoutCompleted is published after a live workout session is
// persisted.
type WorkoutCompleted struct {
	AccountID     int
	AccountName   string
	Title         string
	ExerciseCount int
	SetCount      int
	TotalWeight   float64
	Duration      time.Duration
	Exercises     []string
	CompletedAt   time.Time
}

// MealLogged is published after a meal entry commit (manual, barcode
// or photo estimate).
type MealLogged struct {
	AccountID int
	Name      string
	Calories  int
	Source    string
	LoggedAt  time.Time
}

const defaultBufSize = 16

// Bus fans events out to all subscribers. Publish never blocks: a
// subscriber with a full buffer misses the event.
type Bus[T any] struct {
	mutex sync.RWMutex
	subs  []chan T
}

func NewBus[T any]() *Bus[T] {
	return &Bus[T]{}
}

func (b *Bus[T]) Subscribe() <-chan T {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	sub := make(chan T, defaultBufSize)
	b.subs = append(b.subs, sub)
	return sub
}

func (b *Bus[T]) Publish(event T) {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	for _, sub := range b.subs {
		select {
		case sub <- event:
		default:
			log.Warnf("event bus: subscriber buffer full, event %T dropped", event)
		}
	}
}

// Close closes all subscriber channels. Publish must not be called
// afterwards.
func (b *Bus[T]) Close() {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	for _, sub := range b.subs {
		close(sub)
	}
	b.subs = nil
}
