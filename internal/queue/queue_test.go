package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
)

func TestEnqueueWithRetrySucceedsFirstTry(t *testing.T) {
	q := new(MockQueue)
	task := Task{Type: TaskTypeOrchestrate, Payload: []byte(`{}`)}
	q.On("Enqueue", mock.Anything, task).Return(nil).Once()

	if err := EnqueueWithRetry(context.Background(), q, task, 3, time.Millisecond); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	q.AssertExpectations(t)
}

func TestEnqueueWithRetryRecoversAfterFailure(t *testing.T) {
	q := new(MockQueue)
	task := Task{Type: TaskTypeOrchestrate}
	q.On("Enqueue", mock.Anything, task).Return(errors.New("broker down")).Twice()
	q.On("Enqueue", mock.Anything, task).Return(nil).Once()

	if err := EnqueueWithRetry(context.Background(), q, task, 3, time.Millisecond); err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	q.AssertNumberOfCalls(t, "Enqueue", 3)
}

func TestEnqueueWithRetryExhaustsAttempts(t *testing.T) {
	q := new(MockQueue)
	task := Task{Type: TaskTypeOrchestrate}
	wantErr := errors.New("broker down")
	q.On("Enqueue", mock.Anything, task).Return(wantErr)

	err := EnqueueWithRetry(context.Background(), q, task, 3, time.Millisecond)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected the final enqueue error, got %v", err)
	}
	q.AssertNumberOfCalls(t, "Enqueue", 3)
}

func TestEnqueueWithRetryHonorsContext(t *testing.T) {
	q := new(MockQueue)
	task := Task{Type: TaskTypeOrchestrate}
	q.On("Enqueue", mock.Anything, task).Return(errors.New("broker down"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := EnqueueWithRetry(ctx, q, task, 5, time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
