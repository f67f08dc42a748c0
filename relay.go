package main

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// relayState tracks the upstream connection lifecycle.
type relayState int

const (
	relayIdle relayState = iota
	relayConnecting
	relayActive
	relayBackoff
	relayClosed
)

func (s relayState) String() string {
	switch s {
	case relayIdle:
		return "idle"
	case relayConnecting:
		return "connecting"
	case relayActive:
		return "active"
	case relayBackoff:
		return "backoff"
	case relayClosed:
		return "closed"
	}
	return "unknown"
}

// upstreamSession is one live joined connection, as the relay sees it.
type upstreamSession interface {
	fetchCities(ctx context.Context) ([]City, error)
	fetchUnions(ctx context.Context) ([]Union, error)
	fetchNations(ctx context.Context) ([]Nation, error)
	updateFeed() <-chan StateUpdate
	closed() <-chan error
	close()
}

// relay wires the upstream client to the store, the timelapse logger and the
// broadcast hub, and owns the reconnection policy: one attempt per backoff
// delay, single-flight, capped, then fail-stop.
type relay struct {
	cfg       *Config
	store     *Store
	hub       *Hub
	timelapse *timelapseLogger

	dial func(ctx context.Context) (upstreamSession, error)

	mu               sync.Mutex
	state            relayState
	reconnects       int
	connecting       bool
	reconnectPending bool
	pullDone         bool
}

func newRelay(cfg *Config, store *Store, hub *Hub, timelapse *timelapseLogger) *relay {
	return &relay{
		cfg:       cfg,
		store:     store,
		hub:       hub,
		timelapse: timelapse,
		state:     relayIdle,
	}
}

func (r *relay) currentState() relayState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start authenticates once and launches the connection loop. A login failure
// is fatal and surfaced to the caller; the relay never retries bad
// credentials.
func (r *relay) Start(ctx context.Context) error {
	if r.dial == nil {
		logf(r.cfg, "RELAY: Logging in as %s", r.cfg.email)
		token, userID, err := loginByEmailPassword(ctx, r.cfg)
		if err != nil {
			return fmt.Errorf("upstream login: %w", err)
		}
		logf(r.cfg, "RELAY: Login successful, user id %s", userID)
		r.dial = func(ctx context.Context) (upstreamSession, error) {
			return dialUpstream(ctx, r.cfg, token, userID)
		}
	}

	go r.connect(ctx)
	return nil
}

// connect performs a single connection attempt. Concurrent attempts are
// suppressed; a failure feeds the backoff path.
func (r *relay) connect(ctx context.Context) {
	r.mu.Lock()
	if r.connecting || r.state == relayClosed {
		r.mu.Unlock()
		return
	}
	r.connecting = true
	r.state = relayConnecting
	r.mu.Unlock()

	session, err := r.dial(ctx)
	if err != nil {
		errorf("RELAY: connection attempt failed: %v", err)
		r.mu.Lock()
		r.connecting = false
		r.mu.Unlock()
		r.scheduleReconnect(ctx)
		return
	}

	r.mu.Lock()
	r.connecting = false
	r.reconnects = 0
	r.state = relayActive
	r.pullDone = false
	r.mu.Unlock()

	go r.consume(ctx, session)

	if err := r.initialPull(ctx, session); err != nil {
		// The connection stays up, but deltas keep being discarded until
		// a future session pulls successfully.
		errorf("RELAY: initial pull failed: %v", err)
	}
}

// scheduleReconnect arms a single reconnection timer, or gives up for good
// once the cap is reached.
func (r *relay) scheduleReconnect(ctx context.Context) {
	r.mu.Lock()
	if r.state == relayClosed || r.reconnectPending {
		r.mu.Unlock()
		return
	}
	if r.reconnects >= r.cfg.maxReconnects {
		r.state = relayClosed
		r.mu.Unlock()
		errorf("RELAY: %v after %d attempts; restart required", errReconnectsExhausted, r.cfg.maxReconnects)
		return
	}
	r.reconnects++
	attempt := r.reconnects
	r.reconnectPending = true
	r.state = relayBackoff
	r.mu.Unlock()

	logf(r.cfg, "RELAY: Reconnecting in %s (attempt %d/%d)", r.cfg.reconnectDelay, attempt, r.cfg.maxReconnects)

	timer := time.NewTimer(r.cfg.reconnectDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		r.mu.Lock()
		r.reconnectPending = false
		r.mu.Unlock()
		return
	case <-timer.C:
	}

	r.mu.Lock()
	r.reconnectPending = false
	r.mu.Unlock()

	r.connect(ctx)
}

// consume is the single thread of control for one session: it applies
// notifications in arrival order and reacts to the connection dying.
func (r *relay) consume(ctx context.Context, session upstreamSession) {
	for {
		select {
		case <-ctx.Done():
			session.close()
			return
		case update := <-session.updateFeed():
			r.handleUpdate(ctx, update)
		case err := <-session.closed():
			errorf("RELAY: upstream connection lost: %v", err)
			r.mu.Lock()
			r.pullDone = false
			r.mu.Unlock()
			r.scheduleReconnect(ctx)
			return
		}
	}
}

// initialPull fetches the three collections in sequence, seeding the store
// and pushing a snapshot message downstream after each stage.
func (r *relay) initialPull(ctx context.Context, session upstreamSession) error {
	cities, err := session.fetchCities(ctx)
	if err != nil {
		return fmt.Errorf("fetch cities: %w", err)
	}
	logf(r.cfg, "RELAY: Received initial cities: %d", len(cities))
	r.store.SetCities(cities)
	r.hub.broadcast(wsMessage{Type: msgInitialCities, Payload: cities})
	if r.timelapse != nil {
		r.timelapse.ensureBaselineToday(ctx, cities)
	}

	unions, err := session.fetchUnions(ctx)
	if err != nil {
		return fmt.Errorf("fetch unions: %w", err)
	}
	logf(r.cfg, "RELAY: Received initial unions: %d", len(unions))
	r.store.SetUnions(unions)
	r.hub.broadcast(wsMessage{Type: msgInitialUnions, Payload: unions})

	nations, err := session.fetchNations(ctx)
	if err != nil {
		return fmt.Errorf("fetch nations: %w", err)
	}
	logf(r.cfg, "RELAY: Received initial nations: %d", len(nations))
	r.store.SetNations(nations)
	r.hub.broadcast(wsMessage{Type: msgInitialNations, Payload: nations})

	r.mu.Lock()
	r.pullDone = true
	r.mu.Unlock()

	return nil
}

// handleUpdate merges one notification, logs any control transitions and
// rebroadcasts the delta. Notifications that arrive before the initial pull
// completes are discarded, not queued.
func (r *relay) handleUpdate(ctx context.Context, update StateUpdate) {
	r.mu.Lock()
	ready := r.pullDone
	r.mu.Unlock()
	if !ready {
		logf(r.cfg, "RELAY: Discarding update_data received before initial pull completed")
		return
	}
	if update.empty() {
		return
	}

	res := r.store.Merge(update)

	if len(res.Transitions) > 0 && r.timelapse != nil {
		// Persistence failures are logged inside and never block the
		// broadcast below.
		r.timelapse.logTransitions(ctx, r.store.Cities(), res.Transitions)
	}

	if res.Changed {
		r.hub.broadcast(wsMessage{Type: msgDeltaUpdate, Payload: update})
	}
}
