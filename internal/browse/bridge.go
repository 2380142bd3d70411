package browse

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/query"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/symbol"
)

// ResultsMsg carries a published result set into the program.
type ResultsMsg struct {
	Results *query.ResultSet
}

// NavigateMsg reports the entry the user selected.
type NavigateMsg struct {
	Entry symbol.Entry
}

// Bridge is the session.Renderer for a bubbletea program. The controller
// calls it with its lock held, so Publish and Navigate only queue the
// message; a single drain goroutine hands queued messages to send in the
// order they were queued. Messages queued before Attach are dropped.
type Bridge struct {
	mu       sync.Mutex
	send     func(tea.Msg)
	queue    []tea.Msg
	draining bool
}

// Attach directs messages to send, normally (*tea.Program).Send.
func (b *Bridge) Attach(send func(tea.Msg)) {
	b.mu.Lock()
	b.send = send
	b.mu.Unlock()
}

func (b *Bridge) Publish(rs *query.ResultSet) {
	b.enqueue(ResultsMsg{Results: rs})
}

func (b *Bridge) Navigate(entry symbol.Entry) {
	b.enqueue(NavigateMsg{Entry: entry})
}

func (b *Bridge) enqueue(msg tea.Msg) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.send == nil {
		return
	}
	b.queue = append(b.queue, msg)
	if !b.draining {
		b.draining = true
		go b.drain()
	}
}

func (b *Bridge) drain() {
	for {
		b.mu.Lock()
		if len(b.queue) == 0 {
			b.draining = false
			b.mu.Unlock()
			return
		}
		msg, send := b.queue[0], b.send
		b.queue[0] = nil
		b.queue = b.queue[1:]
		b.mu.Unlock()
		send(msg)
	}
}
