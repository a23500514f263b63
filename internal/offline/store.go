package offline

import (
	"net/http"
	"sync"
	"time"
)

// CachedResponse is a stored copy of a successful network response
type CachedResponse struct {
	Status   int
	Header   http.Header
	Body     []byte
	StoredAt time.Time
}

// GenerationStore holds cached responses grouped by generation name.
// At most one generation is current at a time; activation drops the rest.
// Only the controller writes here, readers get copies through Get.
type GenerationStore struct {
	mu          sync.RWMutex
	generations map[string]map[string]CachedResponse
}

func NewGenerationStore() *GenerationStore {
	return &GenerationStore{
		generations: make(map[string]map[string]CachedResponse),
	}
}

func (s *GenerationStore) Put(generation string, key string, resp CachedResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, ok := s.generations[generation]
	if !ok {
		entries = make(map[string]CachedResponse)
		s.generations[generation] = entries
	}

	entries[key] = resp
}

func (s *GenerationStore) Get(generation string, key string) (CachedResponse, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resp, ok := s.generations[generation][key]
	return resp, ok
}

// Generations returns the names of all known generations
func (s *GenerationStore) Generations() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.generations))
	for name := range s.generations {
		names = append(names, name)
	}

	return names
}

func (s *GenerationStore) Drop(generation string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.generations, generation)
}

// Len reports the number of entries in the generation
func (s *GenerationStore) Len(generation string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.generations[generation])
}
