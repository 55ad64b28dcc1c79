package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3-feed/internal/models"
	"github.com/web3-feed/pkg/logger"
)

func items(ids ...string) []models.ContentItem {
	out := make([]models.ContentItem, len(ids))
	for i, id := range ids {
		out[i] = models.ContentItem{ID: id, Platform: models.PlatformTwitter, Content: "content " + id}
	}
	return out
}

func TestBroker_DeliversOnlyToOwningCaller(t *testing.T) {
	b := NewBroker(logger.Nop())
	defer b.Close()

	mine, cleanup := b.Subscribe(context.Background(), "user-1")
	defer cleanup()
	theirs, cleanup2 := b.Subscribe(context.Background(), "user-2")
	defer cleanup2()

	sent := b.Publish("user-1", items("a", "b"))
	assert.Equal(t, 2, sent)

	ev := <-mine
	assert.Equal(t, EventContentInserted, ev.Type)
	assert.Equal(t, "user-1", ev.CallerID)
	assert.Equal(t, "a", ev.Item.ID)
	assert.Equal(t, "b", (<-mine).Item.ID)

	select {
	case ev := <-theirs:
		t.Fatalf("unexpected event for other caller: %+v", ev)
	default:
	}
}

func TestBroker_DropsWhenQueueIsFull(t *testing.T) {
	b := NewBroker(logger.Nop(), WithBufferSize(1))
	defer b.Close()

	events, cleanup := b.Subscribe(context.Background(), "user-1")
	defer cleanup()

	assert.Equal(t, 1, b.Publish("user-1", items("a", "b", "c")))
	assert.Equal(t, "a", (<-events).Item.ID)
}

func TestBroker_PublishWithoutSubscribers(t *testing.T) {
	b := NewBroker(logger.Nop())
	assert.Zero(t, b.Publish("nobody", items("a")))
}

func TestBroker_CleanupClosesChannel(t *testing.T) {
	b := NewBroker(logger.Nop())
	events, cleanup := b.Subscribe(context.Background(), "user-1")
	require.Equal(t, 1, b.SubscriberCount("user-1"))

	cleanup()
	cleanup()

	_, open := <-events
	assert.False(t, open)
	assert.Zero(t, b.SubscriberCount("user-1"))
}

func TestBroker_ContextCancelUnsubscribes(t *testing.T) {
	b := NewBroker(logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	events, _ := b.Subscribe(ctx, "user-1")

	cancel()

	select {
	case _, open := <-events:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed after cancel")
	}
	assert.Eventually(t, func() bool { return b.SubscriberCount("user-1") == 0 }, time.Second, 10*time.Millisecond)
}

func TestBroker_Close(t *testing.T) {
	b := NewBroker(logger.Nop())
	events, _ := b.Subscribe(context.Background(), "user-1")
	b.Close()

	_, open := <-events
	assert.False(t, open)

	late, _ := b.Subscribe(context.Background(), "user-1")
	_, open = <-late
	assert.False(t, open)
}
