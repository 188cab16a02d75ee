package session_test

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/dmitrymomot/profilekit/pkg/broadcast"
	"github.com/dmitrymomot/profilekit/svc/auth"
	"github.com/dmitrymomot/profilekit/svc/media"
	"github.com/dmitrymomot/profilekit/svc/profile"
	"github.com/dmitrymomot/profilekit/svc/session"
)

// MockGateway records calls with testify; session events are pushed through
// a real broadcaster.
type MockGateway struct {
	mock.Mock
	events *broadcast.MemoryBroadcaster[auth.SessionEvent]
}

func NewMockGateway() *MockGateway {
	return &MockGateway{events: broadcast.NewMemoryBroadcaster[auth.SessionEvent](16)}
}

func (m *MockGateway) RequestMagicLink(ctx context.Context, email string, _ ...auth.RequestOption) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

func (m *MockGateway) ExchangeCallback(ctx context.Context, rawURL string) (*auth.Session, error) {
	args := m.Called(ctx, rawURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.Session), args.Error(1)
}

func (m *MockGateway) SignOut(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockGateway) CurrentSession(ctx context.Context) (*auth.Session, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.Session), args.Error(1)
}

func (m *MockGateway) Subscribe(ctx context.Context) broadcast.Subscriber[auth.SessionEvent] {
	return m.events.Subscribe(ctx)
}

func (m *MockGateway) Push(kind auth.EventKind, s *auth.Session) {
	_ = m.events.Broadcast(context.Background(), broadcast.Message[auth.SessionEvent]{
		Data: auth.SessionEvent{Kind: kind, Session: s},
	})
}

type MockProfiles struct {
	mock.Mock
}

func (m *MockProfiles) Get(ctx context.Context, userID string) (*profile.Profile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*profile.Profile), args.Error(1)
}

func (m *MockProfiles) Bootstrap(ctx context.Context, userID, email string) (*profile.Profile, error) {
	args := m.Called(ctx, userID, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*profile.Profile), args.Error(1)
}

func (m *MockProfiles) Update(ctx context.Context, userID string, patch profile.Patch) (*profile.Profile, error) {
	args := m.Called(ctx, userID, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*profile.Profile), args.Error(1)
}

// trackingMedia counts image operations in flight, from Store until the
// matching Cleanup.
type trackingMedia struct {
	session.Media
	delay time.Duration

	mu     sync.Mutex
	active int
	peak   int
}

func (m *trackingMedia) Store(ctx context.Context, asset media.Asset, userID string, slot media.Slot) (string, string, error) {
	m.mu.Lock()
	m.active++
	m.peak = max(m.peak, m.active)
	m.mu.Unlock()

	time.Sleep(m.delay)
	return m.Media.Store(ctx, asset, userID, slot)
}

func (m *trackingMedia) Cleanup(ctx context.Context, userID string, slot media.Slot, keepPath string) {
	m.Media.Cleanup(ctx, userID, slot, keepPath)
	m.mu.Lock()
	m.active--
	m.mu.Unlock()
}

func (m *trackingMedia) Peak() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peak
}
