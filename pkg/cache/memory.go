package cache

import (
	"context"
	"sync"
)

// Memory is an in-process Cache and Queue used by tests and by the
// client mock service. Queue delivery matches Redis semantics: each
// pushed value is handed to exactly one popper.
type Memory struct {
	mu     sync.Mutex
	values map[string]string
	queues map[string]chan string
}

// NewMemory returns an empty in-memory cache/queue.
func NewMemory() *Memory {
	return &Memory{
		values: make(map[string]string),
		queues: make(map[string]chan string),
	}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.values[key]
	return value, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *Memory) Push(_ context.Context, queue, value string) error {
	m.queue(queue) <- value
	return nil
}

func (m *Memory) BlockingPop(ctx context.Context, queue string) (string, error) {
	select {
	case value := <-m.queue(queue):
		return value, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (m *Memory) queue(name string) chan string {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[name]
	if !ok {
		q = make(chan string, 1024)
		m.queues[name] = q
	}
	return q
}
