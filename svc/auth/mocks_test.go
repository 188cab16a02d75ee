package auth_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/dmitrymomot/profilekit/pkg/broadcast"
	"github.com/dmitrymomot/profilekit/svc/auth"
)

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) SendMagicLink(ctx context.Context, email, redirectURL string) error {
	args := m.Called(ctx, email, redirectURL)
	return args.Error(0)
}

func (m *MockProvider) ExchangeToken(ctx context.Context, accessToken, refreshToken string) (*auth.Session, error) {
	args := m.Called(ctx, accessToken, refreshToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.Session), args.Error(1)
}

func (m *MockProvider) CurrentSession(ctx context.Context) (*auth.Session, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.Session), args.Error(1)
}

func (m *MockProvider) Subscribe(ctx context.Context) broadcast.Subscriber[auth.SessionEvent] {
	args := m.Called(ctx)
	return args.Get(0).(broadcast.Subscriber[auth.SessionEvent])
}

func (m *MockProvider) RevokeSession(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
