package preview

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alantheprice/sitebuilder/pkg/blocks"
	"github.com/alantheprice/sitebuilder/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func helloForest() []blocks.Block {
	return []blocks.Block{{
		ID:   "a",
		Type: blocks.TypeSection,
		Children: []blocks.Block{
			{ID: "b", Type: blocks.TypeText, Props: map[string]any{"content": "Hello"}},
		},
	}}
}

func expectEvent(t *testing.T, sub *events.Subscription, within time.Duration) events.UIEvent {
	t.Helper()
	select {
	case ev := <-sub.C:
		return ev
	case <-time.After(within):
		t.Fatal("expected preview event")
		return events.UIEvent{}
	}
}

func expectNoEvent(t *testing.T, sub *events.Subscription, within time.Duration) {
	t.Helper()
	select {
	case ev := <-sub.C:
		t.Fatalf("unexpected event %s", ev.Type)
	case <-time.After(within):
	}
}

func TestPublishWritesDocumentAndNotifies(t *testing.T) {
	root := t.TempDir()
	bus := events.NewEventBus()
	sub := bus.Subscribe("viewer")
	defer sub.Close()

	pub := NewPublisher(root, bus, nil)
	require.NoError(t, pub.Publish(context.Background(), helloForest()))

	data, err := os.ReadFile(filepath.Join(root, "preview", "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "<section><p>Hello</p></section>")

	ev := expectEvent(t, sub, time.Second)
	assert.Equal(t, events.EventTypePreviewUpdated, ev.Type)

	entries, err := os.ReadDir(filepath.Join(root, "preview"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files must not be left behind")
	assert.Equal(t, "index.html", entries[0].Name())
}

func TestPublishOverwritesPreviousDocument(t *testing.T) {
	root := t.TempDir()
	pub := NewPublisher(root, nil, nil)

	require.NoError(t, pub.Publish(context.Background(), helloForest()))
	require.NoError(t, pub.Publish(context.Background(), nil))

	data, err := os.ReadFile(pub.Path())
	require.NoError(t, err)
	assert.NotContains(t, string(data), "Hello")
}

func TestPublishNotifiesEverySubscriber(t *testing.T) {
	bus := events.NewEventBus()
	subs := []*events.Subscription{bus.Subscribe("a"), bus.Subscribe("b")}
	pub := NewPublisher(t.TempDir(), bus, nil)

	require.NoError(t, pub.Publish(context.Background(), nil))
	for _, s := range subs {
		expectEvent(t, s, time.Second)
		s.Close()
	}

	// A closed subscription receives nothing further.
	require.NoError(t, pub.Publish(context.Background(), nil))
	assert.Zero(t, bus.SubscriberCount())
}

func TestPublishCancelled(t *testing.T) {
	root := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewPublisher(root, nil, nil).Publish(ctx, helloForest())
	assert.ErrorIs(t, err, context.Canceled)
	_, statErr := os.Stat(filepath.Join(root, "preview"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestPublishFailsWhenPreviewIsAFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "preview"), []byte("x"), 0644))

	err := NewPublisher(root, nil, nil).Publish(context.Background(), nil)
	assert.Error(t, err)
}

func TestWatcherReportsExternalWrites(t *testing.T) {
	root := t.TempDir()
	bus := events.NewEventBus()
	sub := bus.Subscribe("viewer")
	defer sub.Close()

	pub := NewPublisher(root, bus, nil)
	w, err := NewWatcher(pub, 20*time.Millisecond, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	// Give the watcher a moment to register the directory.
	require.Eventually(t, func() bool {
		_, err := os.Stat(pub.Dir())
		return err == nil
	}, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.WriteFile(pub.Path(), []byte("<p>from agent</p>"), 0644))
	ev := expectEvent(t, sub, 2*time.Second)
	assert.Equal(t, events.EventTypePreviewUpdated, ev.Type)
	assert.Equal(t, "watcher", ev.Data.(map[string]any)["source"])

	// The publisher's own write is announced once, not echoed by the watcher.
	require.NoError(t, pub.Publish(context.Background(), helloForest()))
	ev = expectEvent(t, sub, time.Second)
	assert.Equal(t, "publish", ev.Data.(map[string]any)["source"])
	expectNoEvent(t, sub, 200*time.Millisecond)
}
