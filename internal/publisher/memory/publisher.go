// Package memory keeps recent alerts in process so they can be listed over HTTP.
package memory

import (
	"context"
	"sync"

	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/notifier"
)

// DefaultCapacity bounds the number of retained alerts.
const DefaultCapacity = 200

// Publisher is a bounded in-memory alert log implementing notifier.Recipient.
type Publisher struct {
	mu       sync.RWMutex
	capacity int
	alerts   []notifier.Alert
}

// New returns a Publisher keeping at most capacity alerts.
func New(capacity int) *Publisher {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Publisher{capacity: capacity}
}

// Channel implements notifier.Recipient.
func (p *Publisher) Channel() string { return "memory" }

// Target implements notifier.Recipient.
func (p *Publisher) Target() string { return "recent" }

// Send records the alert, evicting the oldest when full.
func (p *Publisher) Send(_ context.Context, alert notifier.Alert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.alerts) == p.capacity {
		copy(p.alerts, p.alerts[1:])
		p.alerts = p.alerts[:len(p.alerts)-1]
	}
	p.alerts = append(p.alerts, alert)
	return nil
}

// Recent returns retained alerts, newest first.
func (p *Publisher) Recent() []notifier.Alert {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]notifier.Alert, len(p.alerts))
	for i, a := range p.alerts {
		out[len(p.alerts)-1-i] = a
	}
	return out
}
