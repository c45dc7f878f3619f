package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"garage-sentry-backend/internal/door"
)

// mockSender is a mock implementation of the CommandSender interface.
type mockSender struct {
	SendFunc func(ctx context.Context, action door.Action) error
}

func (m *mockSender) SendCommand(ctx context.Context, action door.Action) error {
	return m.SendFunc(ctx, action)
}

type reportedOutcome struct {
	action door.Action
	err    error
}

type mockReporter struct {
	outcomes chan reportedOutcome
}

func (m *mockReporter) CommandDispatched(action door.Action, err error) {
	m.outcomes <- reportedOutcome{action: action, err: err}
}

func TestGateway_Issue(t *testing.T) {
	g := New(&mockSender{}, zap.NewNop())

	g.Issue(door.ActionOpen)

	select {
	case job := <-g.Jobs():
		assert.Equal(t, door.ActionOpen, job)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for job to be queued")
	}
}

func TestGateway_IssueDoesNotBlockWhenFull(t *testing.T) {
	g := New(&mockSender{}, zap.NewNop())

	done := make(chan struct{})
	go func() {
		for i := 0; i < queueSize+3; i++ {
			g.Issue(door.ActionClose)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Issue blocked on a full queue")
	}
	assert.Len(t, g.Jobs(), queueSize)
}

func TestGateway_WorkerSerializesAndReports(t *testing.T) {
	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	var sent []door.Action

	sender := &mockSender{SendFunc: func(ctx context.Context, action door.Action) error {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		sent = append(sent, action)
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		if action == door.ActionClose {
			return errors.New("device offline")
		}
		return nil
	}}
	reporter := &mockReporter{outcomes: make(chan reportedOutcome, 4)}

	g := New(sender, zap.NewNop())
	g.SetReporter(reporter)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g.Start(ctx)

	g.Issue(door.ActionOpen)
	g.Issue(door.ActionClose)

	var outcomes []reportedOutcome
	for i := 0; i < 2; i++ {
		select {
		case o := <-reporter.outcomes:
			outcomes = append(outcomes, o)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for command outcome")
		}
	}

	require.Len(t, outcomes, 2)
	assert.Equal(t, door.ActionOpen, outcomes[0].action)
	assert.NoError(t, outcomes[0].err)
	assert.Equal(t, door.ActionClose, outcomes[1].action)
	assert.EqualError(t, outcomes[1].err, "device offline")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []door.Action{door.ActionOpen, door.ActionClose}, sent)
	assert.Equal(t, 1, maxInFlight, "commands must not overlap")
}
