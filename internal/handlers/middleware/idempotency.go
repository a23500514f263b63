package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/valecashback/valecashback/internal/handlers/render"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"

	stateProcessing = "processing"
	stateComplete   = "complete"

	defaultEntryTTL      = 24 * time.Hour
	defaultSweepInterval = 10 * time.Minute
)

type idempotencyEntry struct {
	state        string
	bodyHash     string
	statusCode   int
	header       http.Header
	responseBody []byte
	createdAt    time.Time
}

// IdempotencyStore keeps responses of completed requests keyed by
// client-generated idempotency key. Requests waiting on a processing key
// are parked on the condition variable until the first one completes.
type IdempotencyStore struct {
	mu   sync.Mutex
	cond *sync.Cond
	data map[string]*idempotencyEntry
	ttl  time.Duration
}

func NewIdempotencyStore(ttl time.Duration) *IdempotencyStore {
	if ttl == 0 {
		ttl = defaultEntryTTL
	}

	s := &IdempotencyStore{
		data: make(map[string]*idempotencyEntry),
		ttl:  ttl,
	}
	s.cond = sync.NewCond(&s.mu)

	return s
}

// getOrClaim returns the entry stored for key, or installs a processing
// entry and reports that the caller owns the execution. Lookup and claim
// happen under one lock, so two simultaneous first requests can't both win.
func (s *IdempotencyStore) getOrClaim(key string, bodyHash string) (*idempotencyEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.data[key]; ok {
		return existing, false
	}

	s.data[key] = &idempotencyEntry{
		state:     stateProcessing,
		bodyHash:  bodyHash,
		createdAt: time.Now(),
	}

	return nil, true
}

func (s *IdempotencyStore) set(key string, entry *idempotencyEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = entry

	// Wake up requests parked on a processing key
	s.cond.Broadcast()
}

// waitComplete blocks until the entry for key leaves the processing state
func (s *IdempotencyStore) waitComplete(key string) *idempotencyEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		entry, exists := s.data[key]
		if !exists || entry.state == stateComplete {
			return entry
		}
		s.cond.Wait()
	}
}

// Sweep evicts entries older than ttl until the context is cancelled
func (s *IdempotencyStore) Sweep(ctx context.Context) {
	ticker := time.NewTicker(defaultSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-s.ttl)

			s.mu.Lock()
			for key, entry := range s.data {
				if entry.state == stateComplete && entry.createdAt.Before(cutoff) {
					delete(s.data, key)
				}
			}
			s.mu.Unlock()
		}
	}
}

type recordingWriter struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (w *recordingWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	w.body.Write(p)
	return w.ResponseWriter.Write(p)
}

// IdempotencyMiddleware makes guarded endpoints safe to retry: the same key
// with the same body replays the stored response instead of re-executing the
// handler, so a retried redemption can never settle twice. The same key with
// a different body is a conflict. Concurrent duplicates wait for the first
// request to finish and get its response.
func IdempotencyMiddleware(s *IdempotencyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyKeyHeader)
			if key == "" {
				render.ServiceError(w, "Missing Idempotency-Key header", http.StatusBadRequest)
				return
			}

			rawBody, err := io.ReadAll(r.Body)
			if err != nil {
				render.ServiceError(w, "Failed to read request body", http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(rawBody))

			sum := sha256.Sum256(rawBody)
			bodyHash := hex.EncodeToString(sum[:])

			for {
				existing, claimed := s.getOrClaim(key, bodyHash)
				if claimed {
					break
				}

				if existing.state == stateProcessing {
					existing = s.waitComplete(key)
					if existing == nil {
						// Entry was evicted while waiting, compete again
						continue
					}
				}

				if existing.bodyHash != bodyHash {
					render.ServiceError(w, "Idempotency key already used with different request body", http.StatusConflict)
					return
				}

				replay(w, existing)
				return
			}

			recorder := &recordingWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(recorder, r)

			s.set(key, &idempotencyEntry{
				state:        stateComplete,
				bodyHash:     bodyHash,
				statusCode:   recorder.statusCode,
				header:       recorder.Header().Clone(),
				responseBody: recorder.body.Bytes(),
				createdAt:    time.Now(),
			})
		})
	}
}

func replay(w http.ResponseWriter, entry *idempotencyEntry) {
	for name, values := range entry.header {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.Header().Set("X-Idempotent-Replay", "true")
	w.WriteHeader(entry.statusCode)
	_, _ = w.Write(entry.responseBody)
}
