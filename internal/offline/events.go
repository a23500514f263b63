package offline

import (
	"context"
	"net/http"
)

type EventKind string

// Fetches have no event kind: they are intercepted on RoundTrip directly
const (
	EventInstall           EventKind = "install"
	EventActivate          EventKind = "activate"
	EventSync              EventKind = "sync"
	EventPush              EventKind = "push"
	EventNotificationClick EventKind = "notificationclick"
)

// Event is a single occurrence dispatched to the controller
type Event struct {
	Kind    EventKind
	Payload []byte // push only
	Link    string // notificationclick only
}

type DecisionKind int

const (
	// Pass the live network response through
	ServeNetwork DecisionKind = iota

	// Serve the entry cached for this exact request
	ServeCached

	// Serve the cached shell document in place of the requested page
	ServeFallback

	// Synthesize a service unavailable response
	ServeUnavailable
)

// Decision describes what the controller should answer with.
// Handlers return decisions instead of touching the cache themselves:
// the controller alone executes them.
type Decision struct {
	Kind   DecisionKind
	Live   *http.Response // set for ServeNetwork
	Cached CachedResponse // set for ServeCached and ServeFallback

	// Store asks the controller to keep a copy of the live response
	// under Key in the current generation
	Store bool
	Key   string
}

// Handler reacts to one event kind
type Handler func(ctx context.Context, ev Event) error
