// internal/agent/event_bus.go
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/seeclaw/internal/llmclient"
)

// NoticeKind categorizes what the engine is reporting.
type NoticeKind string

const (
	NoticeState     NoticeKind = "state"
	NoticeActivity  NoticeKind = "activity"
	NoticeApproval  NoticeKind = "approval"
	NoticeViewport  NoticeKind = "viewport"
	NoticeStream    NoticeKind = "stream"
	NoticeCancelled NoticeKind = "cancelled"
)

var allNoticeKinds = []NoticeKind{NoticeState, NoticeActivity, NoticeApproval, NoticeViewport, NoticeStream, NoticeCancelled}

// Notice is the envelope delivered to subscribers.
type Notice struct {
	ID        string
	Timestamp time.Time
	Kind      NoticeKind
	Payload   any
}

// defaultPostTimeout bounds how long a Notifier call waits on a slow subscriber.
const defaultPostTimeout = 250 * time.Millisecond

// EventBus fans engine notices out to subscribers. Post blocks while a
// subscriber buffer is full; the Notifier methods give up after a short
// timeout so a stalled consumer cannot hold up the engine.
type EventBus struct {
	logger *zap.Logger

	subscribers map[NoticeKind][]chan Notice
	mu          sync.RWMutex
	bufferSize  int
	postTimeout time.Duration

	activePosts sync.WaitGroup
	isShutdown  bool
	shutdownMu  sync.Mutex
}

var _ Notifier = (*EventBus)(nil)

func NewEventBus(logger *zap.Logger, bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &EventBus{
		logger:      logger.Named("event_bus"),
		subscribers: make(map[NoticeKind][]chan Notice),
		bufferSize:  bufferSize,
		postTimeout: defaultPostTimeout,
	}
}

// Post delivers n to every subscriber of its kind.
func (b *EventBus) Post(ctx context.Context, n Notice) (err error) {
	b.shutdownMu.Lock()
	if b.isShutdown {
		b.shutdownMu.Unlock()
		return fmt.Errorf("cannot post notice: event bus is shut down")
	}
	b.activePosts.Add(1)
	b.shutdownMu.Unlock()
	defer b.activePosts.Done()

	// A send can race with Shutdown closing the channel.
	defer func() {
		if r := recover(); r != nil {
			b.logger.Debug("Recovered from panic in Post, likely due to shutdown.", zap.Any("panic", r))
			err = fmt.Errorf("failed to post notice: bus is shutting down")
		}
	}()

	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	subs := append([]chan Notice(nil), b.subscribers[n.Kind]...)
	b.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- n:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribe returns a channel of notices of the given kinds, or of every kind
// when none are named, and a function that unsubscribes and closes it.
func (b *EventBus) Subscribe(kinds ...NoticeKind) (<-chan Notice, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Notice, b.bufferSize)
	if len(kinds) == 0 {
		kinds = allNoticeKinds
	}
	for _, k := range kinds {
		b.subscribers[k] = append(b.subscribers[k], ch)
	}

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			// After Shutdown the channel is already closed and no longer listed.
			found := false
			for _, k := range kinds {
				subs := b.subscribers[k]
				for i, c := range subs {
					if c == ch {
						b.subscribers[k] = append(subs[:i], subs[i+1:]...)
						found = true
						break
					}
				}
			}
			if found {
				close(ch)
			}
		})
	}
	return ch, unsubscribe
}

// Shutdown closes every subscriber channel and waits for in-flight posts.
func (b *EventBus) Shutdown() {
	b.shutdownMu.Lock()
	if b.isShutdown {
		b.shutdownMu.Unlock()
		return
	}
	b.isShutdown = true
	b.shutdownMu.Unlock()

	b.mu.Lock()
	unique := make(map[chan Notice]struct{})
	for _, subs := range b.subscribers {
		for _, ch := range subs {
			unique[ch] = struct{}{}
		}
	}
	for ch := range unique {
		close(ch)
	}
	b.subscribers = make(map[NoticeKind][]chan Notice)
	b.mu.Unlock()

	b.activePosts.Wait()
}

func (b *EventBus) notify(kind NoticeKind, payload any) error {
	ctx, cancel := context.WithTimeout(context.Background(), b.postTimeout)
	defer cancel()
	if err := b.Post(ctx, Notice{Kind: kind, Payload: payload}); err != nil {
		return fmt.Errorf("%s notice dropped: %w", kind, err)
	}
	return nil
}

func (b *EventBus) StateChanged(s State) error  { return b.notify(NoticeState, s) }
func (b *EventBus) Activity(label string) error { return b.notify(NoticeActivity, label) }
func (b *EventBus) ApprovalRequired(req ApprovalRequest) error {
	return b.notify(NoticeApproval, req)
}
func (b *EventBus) ViewportCaptured(info ViewportInfo) error {
	return b.notify(NoticeViewport, info)
}
func (b *EventBus) StreamChunk(c llmclient.StreamChunk) error { return b.notify(NoticeStream, c) }
func (b *EventBus) TaskCancelled() error                      { return b.notify(NoticeCancelled, nil) }
