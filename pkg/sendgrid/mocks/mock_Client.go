// Package mocks provides test doubles for the sendgrid client.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"

	sendgrid "github.com/sells-group/prospector-cli/pkg/sendgrid"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// Send provides a mock function with given fields: ctx, mail
func (_m *MockClient) Send(ctx context.Context, mail sendgrid.Mail) (int, error) {
	ret := _m.Called(ctx, mail)

	if len(ret) == 0 {
		panic("no return value specified for Send")
	}

	var r0 int
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, sendgrid.Mail) (int, error)); ok {
		return rf(ctx, mail)
	}
	if rf, ok := ret.Get(0).(func(context.Context, sendgrid.Mail) int); ok {
		r0 = rf(ctx, mail)
	} else {
		r0 = ret.Get(0).(int)
	}

	if rf, ok := ret.Get(1).(func(context.Context, sendgrid.Mail) error); ok {
		r1 = rf(ctx, mail)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockClient creates a new instance of MockClient. It also registers a
// testing interface on the mock and a cleanup function to assert the mocks
// expectations.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	m := &MockClient{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
