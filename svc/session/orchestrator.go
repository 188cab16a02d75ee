package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dmitrymomot/profilekit/pkg/broadcast"
	"github.com/dmitrymomot/profilekit/pkg/logger"
	"github.com/dmitrymomot/profilekit/pkg/metrics"
	"github.com/dmitrymomot/profilekit/pkg/statemachine"
	"github.com/dmitrymomot/profilekit/svc/auth"
	"github.com/dmitrymomot/profilekit/svc/media"
	"github.com/dmitrymomot/profilekit/svc/profile"
)

// Gateway is the auth surface the orchestrator drives. *auth.Gateway
// implements it.
type Gateway interface {
	RequestMagicLink(ctx context.Context, email string, opts ...auth.RequestOption) error
	ExchangeCallback(ctx context.Context, rawURL string) (*auth.Session, error)
	SignOut(ctx context.Context) error
	CurrentSession(ctx context.Context) (*auth.Session, error)
	Subscribe(ctx context.Context) broadcast.Subscriber[auth.SessionEvent]
}

// Profiles is implemented by *profile.Service.
type Profiles interface {
	Get(ctx context.Context, userID string) (*profile.Profile, error)
	Bootstrap(ctx context.Context, userID, email string) (*profile.Profile, error)
	Update(ctx context.Context, userID string, patch profile.Patch) (*profile.Profile, error)
}

// Media is implemented by *media.Repository.
type Media interface {
	Store(ctx context.Context, asset media.Asset, userID string, slot media.Slot) (string, string, error)
	Cleanup(ctx context.Context, userID string, slot media.Slot, keepPath string)
	Delete(ctx context.Context, url string) error
}

// Orchestrator owns the State. All mutations are serialized; profile loads
// run outside the state lock and are applied only if the identity they were
// issued for is still current.
type Orchestrator struct {
	gateway  Gateway
	profiles Profiles
	media    Media
	logger   *slog.Logger
	metrics  metrics.Recorder
	buffer   int

	machine *statemachine.Machine[Phase, Event]
	states  *broadcast.MemoryBroadcaster[State]
	locks   *identityLocks

	mu      sync.Mutex
	state   State
	gen     uint64
	started bool
	closed  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.metrics = r
		}
	}
}

// WithBufferSize sets the per-subscriber State buffer. Default is 16.
func WithBufferSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.buffer = n
		}
	}
}

// loadTag identifies the identity a profile operation was issued for.
type loadTag struct {
	userID string
	email  string
	gen    uint64
}

// New creates an orchestrator in the initializing phase. Call Start to begin
// mirroring the provider session.
func New(gateway Gateway, profiles Profiles, images Media, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gateway:  gateway,
		profiles: profiles,
		media:    images,
		logger:   logger.Discard(),
		metrics:  metrics.Nop(),
		buffer:   16,
		locks:    newIdentityLocks(),
		state:    State{Phase: PhaseInitializing, IsLoading: true},
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With(logger.Component("session"))
	o.machine = newMachine(o.onTransition)
	o.states = broadcast.NewMemoryBroadcaster(o.buffer, broadcast.WithReplayLast[State]())
	o.publishLocked(context.Background())
	return o
}

// Start subscribes to provider events, restores the current session and then
// consumes events until Close is called or ctx ends. Failures while restoring
// leave the orchestrator unauthenticated with State.Err set.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if o.started {
		o.mu.Unlock()
		return ErrAlreadyStarted
	}
	o.started = true
	loopCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.wg.Add(1)
	o.mu.Unlock()

	// Subscribe before reading the session so no change is missed.
	sub := o.gateway.Subscribe(loopCtx)

	sess, err := o.gateway.CurrentSession(ctx)
	switch {
	case err != nil || sess == nil:
		if err != nil {
			o.logger.WarnContext(ctx, "could not restore session", logger.Error(err))
		}
		o.mu.Lock()
		o.state.Err = err
		o.fireLocked(ctx, EventSessionMissing, nil)
		o.publishLocked(ctx)
		o.mu.Unlock()
	default:
		o.mu.Lock()
		tag, _ := o.establishLocked(ctx, sess)
		o.mu.Unlock()
		_, _ = o.load(ctx, tag)
	}

	o.mu.Lock()
	closed := o.closed
	o.mu.Unlock()
	if closed {
		_ = sub.Close()
		o.wg.Done()
		return nil
	}
	go o.run(loopCtx, sub)
	return nil
}

func (o *Orchestrator) run(ctx context.Context, sub broadcast.Subscriber[auth.SessionEvent]) {
	defer o.wg.Done()
	defer func() { _ = sub.Close() }()

	events := sub.Receive(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-events:
			if !ok {
				return
			}
			o.handle(ctx, msg.Data)
		}
	}
}

func (o *Orchestrator) handle(ctx context.Context, ev auth.SessionEvent) {
	o.logger.DebugContext(ctx, "provider event", logger.Event(string(ev.Kind)))

	switch ev.Kind {
	case auth.EventEstablished:
		if ev.Session == nil {
			return
		}
		o.mu.Lock()
		tag, changed := o.establishLocked(ctx, ev.Session)
		o.mu.Unlock()
		if !changed {
			return
		}
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			_, _ = o.load(ctx, tag)
		}()

	case auth.EventCleared:
		o.mu.Lock()
		if o.state.Session != nil || o.state.Phase != PhaseUnauthenticated {
			o.clearLocked(ctx, EventSessionMissing, nil)
		}
		o.mu.Unlock()
	}
}

// RequestMagicLink moves to the authenticating phase for the duration of the
// provider call and then returns to the phase implied by the held session.
func (o *Orchestrator) RequestMagicLink(ctx context.Context, email string, opts ...auth.RequestOption) error {
	o.mu.Lock()
	o.state.Err = nil
	o.fireLocked(ctx, EventMagicLinkRequested, nil)
	o.publishLocked(ctx)
	o.mu.Unlock()

	err := o.gateway.RequestMagicLink(ctx, email, opts...)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.Phase == PhaseAuthenticating {
		o.fireLocked(ctx, EventMagicLinkSettled, o.settledPhaseLocked())
	}
	o.state.Err = err
	o.publishLocked(ctx)
	return err
}

// ExchangeCallback installs the session carried by a deep-link URL and loads
// its profile before returning.
func (o *Orchestrator) ExchangeCallback(ctx context.Context, rawURL string) (State, error) {
	sess, err := o.gateway.ExchangeCallback(ctx, rawURL)
	if err != nil {
		return o.Snapshot(), err
	}

	o.mu.Lock()
	tag, _ := o.establishLocked(ctx, sess)
	o.mu.Unlock()

	_, err = o.load(ctx, tag)
	return o.Snapshot(), err
}

// SignOut revokes the session with the provider first. When that fails the
// state is left untouched.
func (o *Orchestrator) SignOut(ctx context.Context) error {
	if err := o.gateway.SignOut(ctx); err != nil {
		o.logger.WarnContext(ctx, "sign out failed", logger.Error(err))
		return err
	}

	o.mu.Lock()
	o.clearLocked(ctx, EventSignedOut, nil)
	o.mu.Unlock()
	return nil
}

// UpdateProfile applies patch to the signed-in profile. On failure the
// previous profile is kept.
func (o *Orchestrator) UpdateProfile(ctx context.Context, patch profile.Patch) (*profile.Profile, error) {
	tag, err := o.currentTag()
	if err != nil {
		return nil, err
	}
	return o.updateAs(ctx, tag, patch)
}

// RefreshProfile reloads the signed-in profile from the repository.
func (o *Orchestrator) RefreshProfile(ctx context.Context) (*profile.Profile, error) {
	tag, err := o.currentTag()
	if err != nil {
		return nil, err
	}

	unlock := o.locks.lock(tag.userID)
	defer unlock()

	p, err := o.profiles.Get(ctx, tag.userID)
	if err != nil {
		return nil, err
	}
	return o.applyProfile(ctx, tag, p), nil
}

// UploadImage stores asset, links it to the slot field of the profile and
// only then removes older images of the slot. When linking fails the new
// object is removed again. Image operations for one identity run one at a
// time.
func (o *Orchestrator) UploadImage(ctx context.Context, slot media.Slot, asset media.Asset) (*profile.Profile, error) {
	tag, err := o.currentTag()
	if err != nil {
		return nil, err
	}
	patch, err := slotPatch(slot, profile.Set[string])
	if err != nil {
		return nil, err
	}

	unlock := o.locks.lock(tag.userID)
	defer unlock()

	url, path, err := o.media.Store(ctx, asset, tag.userID, slot)
	if err != nil {
		return nil, err
	}

	p, err := o.update(ctx, tag, patch(url))
	if err != nil {
		if derr := o.media.Delete(ctx, url); derr != nil {
			o.logger.WarnContext(ctx, "could not remove unlinked image",
				logger.UserID(tag.userID),
				logger.Path(path),
				logger.Error(derr),
			)
		}
		return nil, err
	}

	o.media.Cleanup(ctx, tag.userID, slot, path)
	return p, nil
}

// RemoveImage clears the slot field and then deletes the image it pointed to.
// Deletion failures are logged.
func (o *Orchestrator) RemoveImage(ctx context.Context, slot media.Slot) (*profile.Profile, error) {
	tag, err := o.currentTag()
	if err != nil {
		return nil, err
	}
	patch, err := slotPatch(slot, func(string) profile.Field[string] { return profile.Null[string]() })
	if err != nil {
		return nil, err
	}

	unlock := o.locks.lock(tag.userID)
	defer unlock()

	current, err := o.profiles.Get(ctx, tag.userID)
	if err != nil {
		return nil, err
	}
	previous := slotURL(current, slot)

	p, err := o.update(ctx, tag, patch(""))
	if err != nil {
		return nil, err
	}

	if previous != "" {
		if err := o.media.Delete(ctx, previous); err != nil {
			o.logger.WarnContext(ctx, "could not delete removed image",
				logger.UserID(tag.userID),
				logger.Slot(slot.String()),
				logger.Error(err),
			)
		}
	}
	return p, nil
}

// Subscribe streams State snapshots. The current snapshot is delivered first.
func (o *Orchestrator) Subscribe(ctx context.Context) broadcast.Subscriber[State] {
	return o.states.Subscribe(ctx)
}

// Snapshot returns the current State.
func (o *Orchestrator) Snapshot() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.clone()
}

// Close stops event processing, waits for in-flight loads and closes all
// subscriptions. Safe to call more than once.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	cancel := o.cancel
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	o.wg.Wait()
	return o.states.Close()
}

func (o *Orchestrator) updateAs(ctx context.Context, tag loadTag, patch profile.Patch) (*profile.Profile, error) {
	unlock := o.locks.lock(tag.userID)
	defer unlock()
	return o.update(ctx, tag, patch)
}

// update must be called with the identity lock of tag held.
func (o *Orchestrator) update(ctx context.Context, tag loadTag, patch profile.Patch) (*profile.Profile, error) {
	p, err := o.profiles.Update(ctx, tag.userID, patch)
	if err != nil {
		return nil, err
	}
	return o.applyProfile(ctx, tag, p), nil
}

// load bootstraps the profile for tag and applies the result if tag is
// still current.
func (o *Orchestrator) load(ctx context.Context, tag loadTag) (*profile.Profile, error) {
	unlock := o.locks.lock(tag.userID)
	defer unlock()

	p, err := o.profiles.Bootstrap(ctx, tag.userID, tag.email)

	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.currentLocked(tag) {
		o.metrics.RecordStaleLoadDiscarded()
		o.logger.WarnContext(ctx, "discarding stale profile load",
			logger.UserID(tag.userID),
			logger.Error(err),
		)
		return nil, ErrSuperseded
	}

	if err != nil {
		o.logger.WarnContext(ctx, "profile bootstrap failed",
			logger.UserID(tag.userID),
			logger.Error(err),
		)
		event := EventSessionMissing
		if o.state.Phase == PhaseProfileLoading {
			event = EventProfileFailed
		}
		o.clearLocked(ctx, event, err)
		return nil, err
	}

	o.state.Profile = p.Clone()
	o.state.Err = nil
	if o.state.Phase == PhaseProfileLoading {
		o.fireLocked(ctx, EventProfileLoaded, nil)
	}
	o.publishLocked(ctx)
	return p, nil
}

func (o *Orchestrator) applyProfile(ctx context.Context, tag loadTag, p *profile.Profile) *profile.Profile {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.currentLocked(tag) {
		o.metrics.RecordStaleLoadDiscarded()
		o.logger.DebugContext(ctx, "identity changed, profile result not applied", logger.UserID(tag.userID))
		return p
	}

	o.state.Profile = p.Clone()
	o.state.Err = nil
	if o.state.Phase == PhaseProfileLoading {
		o.fireLocked(ctx, EventProfileLoaded, nil)
	}
	o.publishLocked(ctx)
	return p
}

func (o *Orchestrator) currentTag() (loadTag, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.Identity == nil {
		return loadTag{}, ErrNotAuthenticated
	}
	return o.tagLocked(), nil
}

func (o *Orchestrator) tagLocked() loadTag {
	return loadTag{userID: o.state.Identity.ID, email: o.state.Identity.Email, gen: o.gen}
}

func (o *Orchestrator) currentLocked(tag loadTag) bool {
	return o.gen == tag.gen && o.state.UserID() == tag.userID
}

// establishLocked records sess as the held session. It reports whether the
// identity changed and a profile load is needed.
func (o *Orchestrator) establishLocked(ctx context.Context, sess *auth.Session) (loadTag, bool) {
	held := o.state.Session
	if held.SameAs(sess) && o.state.UserID() == sess.Identity.ID {
		return o.tagLocked(), false
	}

	s := *sess
	identity := sess.Identity
	if o.state.UserID() == identity.ID {
		// Token rotation for the same identity keeps the loaded profile.
		o.state.Session = &s
		o.state.Identity = &identity
		o.publishLocked(ctx)
		return o.tagLocked(), false
	}

	o.gen++
	o.state.Session = &s
	o.state.Identity = &identity
	o.state.Profile = nil
	o.state.Err = nil
	o.fireLocked(ctx, EventSessionEstablished, nil)
	o.publishLocked(ctx)
	return o.tagLocked(), true
}

func (o *Orchestrator) clearLocked(ctx context.Context, event Event, err error) {
	o.gen++
	o.state.Session = nil
	o.state.Identity = nil
	o.state.Profile = nil
	o.state.Err = err
	o.fireLocked(ctx, event, nil)
	o.publishLocked(ctx)
}

func (o *Orchestrator) settledPhaseLocked() Phase {
	switch {
	case o.state.Session == nil:
		return PhaseUnauthenticated
	case o.state.Profile == nil:
		return PhaseProfileLoading
	default:
		return PhaseAuthenticated
	}
}

func (o *Orchestrator) fireLocked(ctx context.Context, event Event, data any) {
	to, err := o.machine.Fire(ctx, event, data)
	if err != nil {
		o.logger.ErrorContext(ctx, "invalid phase transition",
			logger.Phase(o.state.Phase.String()),
			logger.Event(string(event)),
			logger.Error(err),
		)
		return
	}
	o.state.Phase = to
	o.state.IsLoading = isLoading(to)
}

func (o *Orchestrator) onTransition(ctx context.Context, from, to Phase, event Event) {
	o.metrics.RecordPhaseTransition(from.String(), to.String())
	o.logger.DebugContext(ctx, "phase transition",
		slog.String("from", from.String()),
		logger.Phase(to.String()),
		logger.Event(string(event)),
	)
}

func (o *Orchestrator) publishLocked(ctx context.Context) {
	if err := o.states.Broadcast(ctx, broadcast.Message[State]{Data: o.state.clone()}); err != nil && !errors.Is(err, broadcast.ErrClosed) {
		o.logger.WarnContext(ctx, "state broadcast failed", logger.Error(err))
	}
}

func slotPatch(slot media.Slot, field func(string) profile.Field[string]) (func(string) profile.Patch, error) {
	switch slot {
	case media.SlotProfile:
		return func(v string) profile.Patch { return profile.Patch{ProfileImage: field(v)} }, nil
	case media.SlotBanner:
		return func(v string) profile.Patch { return profile.Patch{BannerImage: field(v)} }, nil
	}
	return nil, fmt.Errorf("%w: %q", media.ErrInvalidSlot, slot)
}

func slotURL(p *profile.Profile, slot media.Slot) string {
	if p == nil {
		return ""
	}
	var v *string
	switch slot {
	case media.SlotProfile:
		v = p.ProfileImage
	case media.SlotBanner:
		v = p.BannerImage
	}
	if v == nil {
		return ""
	}
	return *v
}
