package tui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// intentQueue runs feed intents one at a time in the order Update issued
// them. bubbletea runs every Cmd on its own goroutine, so intents dispatched
// as independent Cmds would reach the controller in scheduling order.
type intentQueue struct {
	mu      sync.Mutex
	pending []func(ctx context.Context)
	running bool
}

// push enqueues fn. It must be called from Update. The returned Cmd drains
// the queue; it is nil when a drain is already running and will pick fn up.
func (q *intentQueue) push(ctx context.Context, fn func(ctx context.Context)) tea.Cmd {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, fn)
	if q.running {
		return nil
	}
	q.running = true
	return func() tea.Msg {
		q.drain(ctx)
		return nil
	}
}

func (q *intentQueue) drain(ctx context.Context) {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			q.mu.Unlock()
			return
		}
		fn := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		fn(ctx)
	}
}
