package server

import (
	"sync"
	"time"
)

// subscription records when the agent asked to follow a resource
type subscription struct {
	uri       string
	createdAt time.Time
}

// subscriptions is the set of resource uris the agent subscribed to
type subscriptions struct {
	mu    sync.RWMutex
	byURI map[string]*subscription
}

func newSubscriptions() *subscriptions {
	return &subscriptions{byURI: make(map[string]*subscription)}
}

func (m *subscriptions) add(uri string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byURI[uri]; !ok {
		m.byURI[uri] = &subscription{uri: uri, createdAt: time.Now()}
	}
}

func (m *subscriptions) remove(uri string) {
	m.mu.Lock()
	delete(m.byURI, uri)
	m.mu.Unlock()
}

func (m *subscriptions) has(uri string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byURI[uri]
	return ok
}

// Subscribed returns the uris the agent currently follows
func (s *Server) Subscribed() []string {
	s.subscriptions.mu.RLock()
	defer s.subscriptions.mu.RUnlock()
	out := make([]string, 0, len(s.subscriptions.byURI))
	for uri := range s.subscriptions.byURI {
		out = append(out, uri)
	}
	return out
}
