package hub

import "github.com/twlines/maslow-sub003/internal/kanban"

// KanbanPublisher adapts a Hub to internal/kanban.Publisher, so the work
// queue can announce card mutations without importing this package's
// websocket-facing concerns.
type KanbanPublisher struct {
	hub *Hub
}

// NewKanbanPublisher wraps hub for use as a kanban.Publisher.
func NewKanbanPublisher(hub *Hub) *KanbanPublisher {
	return &KanbanPublisher{hub: hub}
}

// Publish broadcasts a kanban event under its own topic string.
func (p *KanbanPublisher) Publish(event kanban.Event) {
	p.hub.Publish(string(event.Kind), event.Card)
}
