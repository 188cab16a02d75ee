package media_test

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"github.com/dmitrymomot/profilekit/pkg/file"
)

type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) Put(ctx context.Context, path string, body io.Reader, size int64, contentType string) (*file.File, error) {
	args := m.Called(ctx, path, body, size, contentType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*file.File), args.Error(1)
}

func (m *MockStorage) List(ctx context.Context, dir string) ([]file.Entry, error) {
	args := m.Called(ctx, dir)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]file.Entry), args.Error(1)
}

func (m *MockStorage) Remove(ctx context.Context, paths ...string) error {
	args := m.Called(ctx, paths)
	return args.Error(0)
}

func (m *MockStorage) Exists(ctx context.Context, path string) bool {
	args := m.Called(ctx, path)
	return args.Bool(0)
}

func (m *MockStorage) URL(path string) string {
	args := m.Called(path)
	return args.String(0)
}
