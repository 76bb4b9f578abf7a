package rag

import (
	"log/slog"
	"sync"
)

// Session holds the mutable runtime switches shared by every request: the
// active model and whether history retrieval is enabled. All accessors are
// safe for concurrent use.
type Session struct {
	mu sync.RWMutex

	currentModel   string
	historyEnabled bool
	available      []string
}

// NewSession builds the session state from the configured default model and
// the models the gateway reported at startup. The default only becomes the
// active model when it is actually served; otherwise the first available
// model wins, and an empty list leaves the default in place so a later
// switch can still fix it.
func NewSession(defaultModel string, available []string, historyEnabled bool) *Session {
	current := defaultModel
	if len(available) > 0 && !contains(available, defaultModel) {
		current = available[0]
		slog.Warn("default model not served, falling back",
			"default", defaultModel, "using", current)
	}
	return &Session{
		currentModel:   current,
		historyEnabled: historyEnabled,
		available:      available,
	}
}

// CurrentModel returns the active model name.
func (s *Session) CurrentModel() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentModel
}

// SetCurrentModel commits a new active model.
func (s *Session) SetCurrentModel(model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentModel = model
}

// HistoryEnabled reports whether retrieval is on.
func (s *Session) HistoryEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.historyEnabled
}

// SetHistoryEnabled flips retrieval on or off.
func (s *Session) SetHistoryEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.historyEnabled = enabled
}

// Available returns a copy of the model names known at startup or after the
// most recent refresh.
func (s *Session) Available() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.available))
	copy(out, s.available)
	return out
}

// SetAvailable replaces the known model list.
func (s *Session) SetAvailable(models []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.available = models
}

// Has reports whether model is in the known list.
func (s *Session) Has(model string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return contains(s.available, model)
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
