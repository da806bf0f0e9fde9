package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishSubscribe_FIFO(t *testing.T) {
	b := NewBus()
	ch, unsubscribe := b.Subscribe("sess-1")
	defer unsubscribe()

	b.Publish("sess-1", Event{Type: EventAgentStarted, Stage: "extraction"})
	b.Publish("sess-1", Event{Type: EventAgentCompleted, Stage: "extraction"})

	first := requireRecv(t, ch)
	second := requireRecv(t, ch)

	assert.Equal(t, EventAgentStarted, first.Type)
	assert.Equal(t, EventAgentCompleted, second.Type)
	assert.Less(t, first.Seq, second.Seq)
}

func TestBus_PublishWithNoSubscribers_DoesNotBlock(t *testing.T) {
	b := NewBus()
	done := make(chan struct{})
	go func() {
		b.Publish("nobody-listening", Event{Type: EventWorkflowStarted})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked with no subscribers")
	}
}

func TestBus_SlowSubscriber_DropsOldestAndReportsLagged(t *testing.T) {
	b := NewBus()
	ch, unsubscribe := b.Subscribe("sess-2")
	defer unsubscribe()

	for i := 0; i < bufferSize+10; i++ {
		b.Publish("sess-2", Event{Type: EventAgentProgress, Stage: "quantitative"})
	}

	sawLagged := false
	for i := 0; i < bufferSize; i++ {
		evt := requireRecv(t, ch)
		if evt.Type == EventLagged {
			sawLagged = true
		}
	}
	assert.True(t, sawLagged, "expected at least one EventLagged once the buffer overflowed")
}

func TestBus_MultipleSubscribers_EachGetsEveryEvent(t *testing.T) {
	b := NewBus()
	ch1, unsub1 := b.Subscribe("sess-3")
	ch2, unsub2 := b.Subscribe("sess-3")
	defer unsub1()
	defer unsub2()

	b.Publish("sess-3", Event{Type: EventWorkflowComplete})

	e1 := requireRecv(t, ch1)
	e2 := requireRecv(t, ch2)
	assert.Equal(t, EventWorkflowComplete, e1.Type)
	assert.Equal(t, EventWorkflowComplete, e2.Type)
}

func TestBus_Unsubscribe_RemovesListener(t *testing.T) {
	b := NewBus()
	ch, unsubscribe := b.Subscribe("sess-4")
	unsubscribe()

	b.Publish("sess-4", Event{Type: EventWorkflowStarted})

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed after unsubscribe")
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected channel to be closed promptly after unsubscribe")
	}
}

func TestBus_Close_RemovesAllSubscribersForSession(t *testing.T) {
	b := NewBus()
	ch, _ := b.Subscribe("sess-5")
	b.Close("sess-5")

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected channel closed after bus Close")
	}
}

func requireRecv(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case evt, ok := <-ch:
		require.True(t, ok, "channel closed unexpectedly")
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}
