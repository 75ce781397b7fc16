package events

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNewEventBus(t *testing.T) {
	eb := NewEventBus()
	assert.NotNil(t, eb)
	assert.Zero(t, eb.SubscriberCount())
}

func TestEventBus_Subscribe(t *testing.T) {
	eb := NewEventBus()

	sub := eb.Subscribe("viewer")
	require.NotNil(t, sub)
	assert.True(t, strings.HasPrefix(sub.ID, "viewer-"))
	assert.Equal(t, 1, eb.SubscriberCount())

	other := eb.Subscribe("viewer")
	assert.NotEqual(t, sub.ID, other.ID)
	assert.Equal(t, 2, eb.SubscriberCount())
}

func TestSubscription_CloseDeregistersAndClosesChannel(t *testing.T) {
	eb := NewEventBus()
	sub := eb.Subscribe("viewer")

	sub.Close()
	sub.Close()

	assert.Zero(t, eb.SubscriberCount())
	_, open := <-sub.C
	assert.False(t, open)

	// Publishing after close must not panic.
	eb.Publish(EventTypePreviewUpdated, nil)
}

func TestEventBus_Publish(t *testing.T) {
	eb := NewEventBus()
	sub := eb.Subscribe("viewer")
	defer sub.Close()

	eb.Publish(EventTypePreviewUpdated, nil)

	select {
	case event := <-sub.C:
		assert.Equal(t, EventTypePreviewUpdated, event.Type)
		assert.NotEmpty(t, event.ID)
		assert.False(t, event.Timestamp.IsZero())
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Expected to receive event but didn't")
	}
}

func TestEventBus_PublishToMultipleSubscribers(t *testing.T) {
	eb := NewEventBus()
	sub1 := eb.Subscribe("subscriber1")
	sub2 := eb.Subscribe("subscriber2")
	defer sub1.Close()
	defer sub2.Close()

	eb.Publish(EventTypeFileChanged, FileChangedEvent("index.html", "modified", 2, 1))

	var wg sync.WaitGroup
	for _, sub := range []*Subscription{sub1, sub2} {
		wg.Add(1)
		go func(sub *Subscription) {
			defer wg.Done()
			select {
			case event := <-sub.C:
				assert.Equal(t, EventTypeFileChanged, event.Type)
			case <-time.After(100 * time.Millisecond):
				t.Errorf("%s didn't receive event", sub.ID)
			}
		}(sub)
	}
	wg.Wait()
}

func TestEventBus_PublishToFullChannel(t *testing.T) {
	eb := NewEventBus()
	sub := eb.Subscribe("slow")
	defer sub.Close()

	for i := 0; i < subscriberBuffer; i++ {
		eb.Publish("test", nil)
	}

	done := make(chan struct{})
	go func() {
		eb.Publish("test", nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Publish blocked on full channel")
	}
	assert.Len(t, sub.C, subscriberBuffer)
}

func TestEventBus_TypedSubscriberIgnoresOtherTraffic(t *testing.T) {
	eb := NewEventBus()
	preview := eb.Subscribe("viewer", EventTypePreviewUpdated)
	defer preview.Close()
	all := eb.Subscribe("all")
	defer all.Close()

	for i := 0; i < subscriberBuffer*2; i++ {
		eb.Publish(EventTypeStreamChunk, StreamChunkEvent("tok"))
	}
	eb.Publish(EventTypePreviewUpdated, nil)

	require.Len(t, preview.C, 1)
	event := <-preview.C
	assert.Equal(t, EventTypePreviewUpdated, event.Type)
	assert.Len(t, all.C, subscriberBuffer, "untyped subscriber still sees the chunks")
}

func TestEventBus_ConcurrentSubscribeAndPublish(t *testing.T) {
	eb := NewEventBus()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sub := eb.Subscribe("viewer")
			sub.Close()
		}()
		go func() {
			defer wg.Done()
			eb.Publish(EventTypePreviewUpdated, nil)
		}()
	}
	wg.Wait()

	assert.Zero(t, eb.SubscriberCount())
}

func TestEventBus_UnsubscribeNonExistent(t *testing.T) {
	eb := NewEventBus()
	eb.Unsubscribe("non-existent")

	sub := eb.Subscribe("new-subscriber")
	defer sub.Close()
	eb.Publish("test", nil)

	select {
	case <-sub.C:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("EventBus not functional after unsubscribing non-existent subscriber")
	}
}

func TestQueryCompletedEvent(t *testing.T) {
	event := QueryCompletedEvent("add a footer", true, 3, 2*time.Second)

	assert.Equal(t, "add a footer", event["prompt"])
	assert.Equal(t, true, event["success"])
	assert.Equal(t, 3, event["patches"])
	assert.Equal(t, int64(2000), event["duration_ms"])
}

func TestErrorEvent(t *testing.T) {
	event := ErrorEvent("something failed", assert.AnError)

	assert.Equal(t, "something failed", event["message"])
	assert.NotEmpty(t, event["error"])
}

func TestFileChangedEvent(t *testing.T) {
	event := FileChangedEvent("src/index.html", "created", 10, 0)

	assert.Equal(t, "src/index.html", event["file_path"])
	assert.Equal(t, "created", event["action"])
	assert.Equal(t, 10, event["insertions"])
	assert.Equal(t, 0, event["deletions"])
}

func TestStreamChunkEvent(t *testing.T) {
	event := StreamChunkEvent("hello world")

	assert.Equal(t, "hello world", event["chunk"])
}
