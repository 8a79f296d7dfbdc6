package executor

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// Mock is a testify mock implementing Executor, used throughout the
// hopper, discovery, and module test suites to assert argv sequences
// without touching the real network stack.
type Mock struct {
	mock.Mock
}

func (m *Mock) Run(ctx context.Context, timeout time.Duration, mustSucceed bool, argv ...string) (Result, error) {
	callArgs := m.Called(timeout, mustSucceed, argv)
	return callArgs.Get(0).(Result), callArgs.Error(1)
}
