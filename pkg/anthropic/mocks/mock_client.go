// Package mocks provides testify mocks for the anthropic package.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/fiplanner/pkg/anthropic"
)

// MockClient is a mock implementation of anthropic.Client.
type MockClient struct {
	mock.Mock
}

// NewMockClient creates a MockClient whose expectations are asserted when
// the test finishes.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	m := &MockClient{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// CreateMessage provides a mock function with given fields: ctx, req.
func (m *MockClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}
