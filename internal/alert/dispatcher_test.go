package alert

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GoomerJaspartap/diagnostic-controller/internal/diagnostic"
)

type fakeSender struct {
	channel Channel
	err     error
	started chan struct{}
	release chan struct{}

	mu   sync.Mutex
	sent []string
}

func (f *fakeSender) Channel() Channel {
	return f.channel
}

func (f *fakeSender) Send(ctx context.Context, task *Task) error {
	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	f.sent = append(f.sent, task.Code)
	f.mu.Unlock()
	return f.err
}

func (f *fakeSender) sentCodes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type fakeRecorder struct {
	mu       sync.Mutex
	outcomes []DeliveryOutcome
}

func (f *fakeRecorder) RecordDeliveryOutcome(_ context.Context, outcome DeliveryOutcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, outcome)
	return nil
}

func (f *fakeRecorder) recorded() []DeliveryOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]DeliveryOutcome(nil), f.outcomes...)
}

func emailTask(code string) *Task {
	cond := Condition{
		Code:         code,
		Description:  "Server room temperature",
		Type:         "Temperature",
		State:        diagnostic.StateFail,
		HistoryCount: 1,
	}
	return NewTask(uuid.New(), cond, "Diagnostics Alert", "State changes detected",
		[]string{"ops@example.com"}, nil, time.Now())
}

func TestDispatcherSubmitDoesNotBlockOnDelivery(t *testing.T) {
	sender := &fakeSender{
		channel: ChannelEmail,
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	d := NewDispatcher(zap.NewNop(), 200*time.Millisecond, nil, sender)
	require.NoError(t, d.Start())
	defer d.Stop()

	require.NoError(t, d.Submit(emailTask("TEMP-001")))

	// Worker is now blocked inside Send. Further submits must still return
	// immediately.
	select {
	case <-sender.started:
	case <-time.After(time.Second):
		t.Fatal("worker never picked up the first task")
	}

	done := make(chan struct{})
	go func() {
		for i := 0; i < 4; i++ {
			assert.NoError(t, d.Submit(emailTask("TEMP-002")))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Submit blocked while a delivery was in flight")
	}

	assert.GreaterOrEqual(t, d.Status().QueueDepth, 4)
	close(sender.release)
}

func TestDispatcherDeliversInOrder(t *testing.T) {
	sender := &fakeSender{channel: ChannelEmail}
	d := NewDispatcher(zap.NewNop(), time.Second, nil, sender)
	require.NoError(t, d.Start())
	defer d.Stop()

	require.NoError(t, d.Submit(emailTask("TEMP-001")))
	require.NoError(t, d.Submit(emailTask("TEMP-002")))
	require.NoError(t, d.Submit(emailTask("TEMP-003")))

	require.Eventually(t, func() bool {
		return d.Status().Delivered == 3
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"TEMP-001", "TEMP-002", "TEMP-003"}, sender.sentCodes())
	assert.Equal(t, 0, d.Status().QueueDepth)
}

func TestDispatcherStopDiscardsPending(t *testing.T) {
	sender := &fakeSender{
		channel: ChannelEmail,
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	d := NewDispatcher(zap.NewNop(), time.Second, nil, sender)
	require.NoError(t, d.Start())

	require.NoError(t, d.Submit(emailTask("TEMP-001")))
	select {
	case <-sender.started:
	case <-time.After(time.Second):
		t.Fatal("worker never picked up the first task")
	}

	require.NoError(t, d.Submit(emailTask("TEMP-002")))
	require.NoError(t, d.Submit(emailTask("TEMP-003")))

	stopDone := make(chan struct{})
	go func() {
		d.Stop()
		close(stopDone)
	}()

	// Wait for the stop signal to land, then let the in-flight send finish.
	require.Eventually(t, func() bool {
		return !d.Status().WorkerRunning
	}, time.Second, 5*time.Millisecond)
	close(sender.release)

	select {
	case <-stopDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}

	status := d.Status()
	assert.Equal(t, uint64(1), status.Delivered)
	assert.Equal(t, uint64(2), status.Dropped)
	assert.Equal(t, 0, status.QueueDepth)
	assert.Equal(t, []string{"TEMP-001"}, sender.sentCodes())
}

func TestDispatcherSubmitWhenNotRunning(t *testing.T) {
	d := NewDispatcher(zap.NewNop(), time.Second, nil, &fakeSender{channel: ChannelEmail})

	err := d.Submit(emailTask("TEMP-001"))
	assert.Error(t, err)

	require.NoError(t, d.Start())
	d.Stop()

	err = d.Submit(emailTask("TEMP-001"))
	assert.Error(t, err)
}

func TestDispatcherCountsFailedAttempts(t *testing.T) {
	sender := &fakeSender{channel: ChannelEmail, err: errors.New("smtp unreachable")}
	recorder := &fakeRecorder{}
	d := NewDispatcher(zap.NewNop(), time.Second, recorder, sender)
	require.NoError(t, d.Start())
	defer d.Stop()

	task := emailTask("TEMP-001")
	require.NoError(t, d.Submit(task))

	require.Eventually(t, func() bool {
		return d.Status().Failed == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, uint64(0), d.Status().Delivered)

	outcomes := recorder.recorded()
	require.Len(t, outcomes, 1)
	assert.Equal(t, task.ID, outcomes[0].TaskID)
	assert.Equal(t, ChannelEmail, outcomes[0].Channel)
	assert.False(t, outcomes[0].Delivered)
	assert.Contains(t, outcomes[0].Detail, "smtp unreachable")
	assert.Equal(t, 1, outcomes[0].Recipients)
}

func TestDispatcherRecordsSuccessfulOutcome(t *testing.T) {
	sender := &fakeSender{channel: ChannelEmail}
	recorder := &fakeRecorder{}
	d := NewDispatcher(zap.NewNop(), time.Second, recorder, sender)
	require.NoError(t, d.Start())
	defer d.Stop()

	require.NoError(t, d.Submit(emailTask("TEMP-001")))

	require.Eventually(t, func() bool {
		return len(recorder.recorded()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	outcome := recorder.recorded()[0]
	assert.True(t, outcome.Delivered)
	assert.Empty(t, outcome.Detail)
	assert.False(t, outcome.AttemptedAt.IsZero())
}

func TestDispatcherStartIsIdempotent(t *testing.T) {
	d := NewDispatcher(zap.NewNop(), time.Second, nil, &fakeSender{channel: ChannelEmail})
	require.NoError(t, d.Start())
	require.NoError(t, d.Start())
	assert.True(t, d.IsRunning())
	d.Stop()
	assert.False(t, d.IsRunning())
}
