package main

import (
	"context"
	"log/slog"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockScheduler struct {
	mock.Mock
}

func (m *mockScheduler) Start(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockScheduler) Stop(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func TestServe_StopsOnSignal(t *testing.T) {
	t.Parallel()

	sched := &mockScheduler{}
	sched.On("Start", mock.Anything).Return(nil)
	sched.On("Stop", mock.Anything).Return(nil)

	signals := make(chan os.Signal, 1)
	signals <- syscall.SIGTERM

	require.NoError(t, serve(t.Context(), sched, signals, slog.Default()))
	sched.AssertExpectations(t)
}

func TestServe_StopsOnContext(t *testing.T) {
	t.Parallel()

	sched := &mockScheduler{}
	sched.On("Start", mock.Anything).Return(nil)
	sched.On("Stop", mock.Anything).Return(nil)

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, serve(ctx, sched, make(chan os.Signal), slog.Default()))
	sched.AssertExpectations(t)
}

func TestServe_StartFailure(t *testing.T) {
	t.Parallel()

	sched := &mockScheduler{}
	sched.On("Start", mock.Anything).Return(assert.AnError)

	err := serve(t.Context(), sched, make(chan os.Signal), slog.Default())
	require.ErrorIs(t, err, assert.AnError)
	sched.AssertNotCalled(t, "Stop", mock.Anything)
}
