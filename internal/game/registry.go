// internal/game/registry.go
package game

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// channelOpTimeout bounds each channel lifecycle call made by the registry.
const channelOpTimeout = 10 * time.Second

type entry struct {
	session   *Session
	origin    string
	ephemeral bool
	delay     time.Duration
	release   sync.Once
}

// Registry maps channel ids to live sessions. It holds no timers of its own; sessions report
// their end through a hook and the registry drops them and releases their ephemeral channel.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*entry
	closing  bool
	releases sync.WaitGroup

	channels ChannelManager
	defaults SessionOptions
	logger   logrus.FieldLogger
}

// NewRegistry builds a registry. defaults supplies the collaborators every session gets unless
// the caller of Create overrides them.
func NewRegistry(channels ChannelManager, defaults SessionOptions) *Registry {
	if defaults.Logger == nil {
		defaults.Logger = logrus.StandardLogger()
	}
	return &Registry{
		sessions: make(map[string]*entry),
		channels: channels,
		defaults: defaults,
		logger:   defaults.Logger,
	}
}

// Create registers a new Lobby session for channelID. An ended session still mapped to the
// channel is replaced.
func (r *Registry) Create(channelID string, rules Rules, opts SessionOptions) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, err := r.createLocked(channelID, rules, opts)
	if err != nil {
		return nil, err
	}
	return e.session, nil
}

func (r *Registry) createLocked(channelID string, rules Rules, opts SessionOptions) (*entry, error) {
	if r.closing {
		return nil, fmt.Errorf("%w: shutting down", ErrSessionEnded)
	}
	if e, ok := r.sessions[channelID]; ok && (e.ephemeral || e.session.Phase() != PhaseEnded) {
		return nil, ErrAlreadyExists
	}

	if opts.Messenger == nil {
		opts.Messenger = r.defaults.Messenger
	}
	if opts.Events == nil {
		opts.Events = r.defaults.Events
	}
	if opts.History == nil {
		opts.History = r.defaults.History
	}
	if opts.Observers == nil {
		opts.Observers = r.defaults.Observers
	}
	if opts.Logger == nil {
		opts.Logger = r.defaults.Logger
	}
	if opts.Clock == nil {
		opts.Clock = r.defaults.Clock
	}
	e := &entry{}
	opts.onEnded = func(*Session) { r.sessionEnded(e) }
	e.session = NewSession(channelID, rules, opts)
	r.sessions[channelID] = e
	return e, nil
}

// OpenRequest asks for a session that lives in its own ephemeral channel.
type OpenRequest struct {
	Channel ChannelSpec
	// Origin is the channel the request came from; FindByOrigin resolves it back to the session.
	Origin  string
	Rules   Rules
	Options SessionOptions
}

// Open acquires the ephemeral channel, applies its permissions and registers the session in it.
// Any channel failure returns ErrChannelOpFailed and leaves neither a registry entry nor a
// half-built channel behind.
func (r *Registry) Open(ctx context.Context, req OpenRequest) (*Session, error) {
	if r.channels == nil {
		return nil, fmt.Errorf("%w: no channel manager", ErrChannelOpFailed)
	}
	if req.Origin != "" {
		if _, err := r.FindByOrigin(req.Rules.Kind(), req.Origin); err == nil {
			return nil, ErrAlreadyExists
		}
	}

	createCtx, cancel := context.WithTimeout(ctx, channelOpTimeout)
	defer cancel()

	spec := req.Channel
	perms := spec.Rules
	spec.Rules = nil
	channelID, err := r.channels.CreateChannel(createCtx, spec)
	if err != nil {
		return nil, fmt.Errorf("%w: create %q: %v", ErrChannelOpFailed, spec.Name, err)
	}
	log := r.logger.WithField("channel", channelID)

	if len(perms) > 0 {
		if err := r.channels.SetPermissions(createCtx, channelID, perms); err != nil {
			r.deleteChannel(channelID, log)
			return nil, fmt.Errorf("%w: permissions on %s: %v", ErrChannelOpFailed, channelID, err)
		}
	}

	r.mu.Lock()
	e, err := r.createLocked(channelID, req.Rules, req.Options)
	if err == nil {
		e.origin = req.Origin
		e.ephemeral = true
		e.delay = req.Rules.Settings().ReleaseDelay
	}
	r.mu.Unlock()
	if err != nil {
		r.deleteChannel(channelID, log)
		return nil, err
	}
	log.Info("ephemeral channel opened")
	return e.session, nil
}

// Get returns the live session in channelID.
func (r *Registry) Get(channelID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[channelID]
	if !ok || e.session.Phase() == PhaseEnded {
		return nil, ErrNotFound
	}
	return e.session, nil
}

// FindByOrigin returns the live session of kind that was opened from originID.
func (r *Registry) FindByOrigin(kind Kind, originID string) (*Session, error) {
	return r.find(func(e *entry) bool { return e.session.Kind == kind && e.origin == originID })
}

// FindByOwner returns the live session of kind hosted by userID.
func (r *Registry) FindByOwner(kind Kind, userID string) (*Session, error) {
	return r.find(func(e *entry) bool { return e.session.Kind == kind && e.session.Owner == userID })
}

func (r *Registry) find(match func(*entry) bool) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.sessions {
		if match(e) && e.session.Phase() != PhaseEnded {
			return e.session, nil
		}
	}
	return nil, ErrNotFound
}

// Remove drops channelID from the registry. Removing an unknown channel is a no-op.
func (r *Registry) Remove(channelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, channelID)
}

// List snapshots every registered session.
func (r *Registry) List() []Snapshot {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, e := range r.sessions {
		sessions = append(sessions, e.session)
	}
	r.mu.Unlock()

	out := make([]Snapshot, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Snapshot())
	}
	return out
}

// Len is the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Shutdown force-ends every live session, delivers the closing notifications and waits for the
// ephemeral channels to be released or for ctx to expire.
func (r *Registry) Shutdown(ctx context.Context, reason EndReason) {
	r.mu.Lock()
	r.closing = true
	sessions := make([]*Session, 0, len(r.sessions))
	for _, e := range r.sessions {
		sessions = append(sessions, e.session)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		notes, err := s.ForceEnd(reason)
		if err != nil {
			continue
		}
		s.Deliver(ctx, notes)
	}

	done := make(chan struct{})
	go func() {
		r.releases.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		r.logger.Warn("shutdown finished before every channel was released")
	}
}

// sessionEnded is every session's end hook. The entry is dropped only if it is still the one
// mapped to the channel; the ephemeral channel is released either way.
func (r *Registry) sessionEnded(e *entry) {
	r.mu.Lock()
	s := e.session
	if cur, ok := r.sessions[s.ChannelID]; ok && cur == e {
		delete(r.sessions, s.ChannelID)
	}
	closing, ephemeral, delay := r.closing, e.ephemeral, e.delay
	r.mu.Unlock()

	if !ephemeral {
		return
	}
	e.release.Do(func() {
		log := r.logger.WithFields(logrus.Fields{"channel": s.ChannelID, "session": s.ID.String()})
		if closing {
			delay = 0
		}
		r.releases.Add(1)
		time.AfterFunc(delay, func() {
			defer r.releases.Done()
			r.deleteChannel(s.ChannelID, log)
		})
	})
}

func (r *Registry) deleteChannel(channelID string, log logrus.FieldLogger) {
	ctx, cancel := context.WithTimeout(context.Background(), channelOpTimeout)
	defer cancel()
	if err := r.channels.DeleteChannel(ctx, channelID); err != nil {
		log.WithError(err).Warn("failed to delete ephemeral channel")
		return
	}
	log.Info("ephemeral channel released")
}
