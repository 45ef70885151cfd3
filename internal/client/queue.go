package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"softspace/internal/client/localstate"
)

const maxPending = 20

// pendingQueue keeps messages typed before the user signed in, so they can
// be sent once a session exists.
type pendingQueue struct {
	mu    sync.Mutex
	store localstate.Store
}

func (q *pendingQueue) load(ctx context.Context) ([]string, error) {
	raw, err := q.store.Get(ctx, localstate.KeyPending)
	if errors.Is(err, localstate.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var texts []string
	if err := json.Unmarshal([]byte(raw), &texts); err != nil {
		return nil, fmt.Errorf("decode pending messages: %w", err)
	}
	return texts, nil
}

// Push appends text to the queue, dropping the oldest entry when full.
func (q *pendingQueue) Push(ctx context.Context, text string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	texts, err := q.load(ctx)
	if err != nil {
		texts = nil
	}
	texts = append(texts, text)
	if len(texts) > maxPending {
		texts = texts[len(texts)-maxPending:]
	}
	raw, err := json.Marshal(texts)
	if err != nil {
		return err
	}
	return q.store.Set(ctx, localstate.KeyPending, string(raw))
}

// Drain returns every queued message and empties the queue.
func (q *pendingQueue) Drain(ctx context.Context) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	texts, err := q.load(ctx)
	if delErr := q.store.Delete(ctx, localstate.KeyPending); delErr != nil && err == nil {
		err = delErr
	}
	return texts, err
}

// Len returns the number of queued messages.
func (q *pendingQueue) Len(ctx context.Context) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	texts, _ := q.load(ctx)
	return len(texts)
}
