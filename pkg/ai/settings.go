package ai

import "sync"

// RuntimeSettings holds provider settings that operators can change while the
// service runs
type RuntimeSettings struct {
	mu            sync.RWMutex
	ollamaBaseURL string
	ollamaModel   string
}

func NewRuntimeSettings(ollamaBaseURL, ollamaModel string) *RuntimeSettings {
	if ollamaBaseURL == "" {
		ollamaBaseURL = "http://localhost:11434"
	}
	if ollamaModel == "" {
		ollamaModel = "llama3"
	}
	return &RuntimeSettings{ollamaBaseURL: ollamaBaseURL, ollamaModel: ollamaModel}
}

func (s *RuntimeSettings) OllamaBaseURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ollamaBaseURL
}

func (s *RuntimeSettings) OllamaModel() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ollamaModel
}

// UpdateOllama replaces the base URL, and the model when one is given
func (s *RuntimeSettings) UpdateOllama(baseURL, model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if baseURL != "" {
		s.ollamaBaseURL = baseURL
	}
	if model != "" {
		s.ollamaModel = model
	}
}
