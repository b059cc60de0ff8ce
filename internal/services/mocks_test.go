package services

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/mock"

	"github.com/K3mp3/FixMatch/internal/events"
)

// mockNotifier is a mock implementation of INotificationService
type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Dispatch(ctx context.Context, to, templateID string, data map[string]string) error {
	args := m.Called(ctx, to, templateID, data)
	return args.Error(0)
}

func (m *mockNotifier) RelayOutbox(ctx context.Context, limit int64) (int, error) {
	args := m.Called(ctx, limit)
	return args.Int(0), args.Error(1)
}

// acceptingNotifier returns a notifier that accepts every email.
func acceptingNotifier() *mockNotifier {
	n := new(mockNotifier)
	n.On("Dispatch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	return n
}

// mockAsynqClient is a mock implementation of tasks.IAsynqClient
type mockAsynqClient struct {
	mock.Mock
}

func (m *mockAsynqClient) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	args := m.Called(ctx, task, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*asynq.TaskInfo), args.Error(1)
}

// mockPublisher is a mock implementation of events.Publisher
type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, e events.Event) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *mockPublisher) Close() error {
	return m.Called().Error(0)
}
