package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/layer-3/loginguard/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSecurityEvent(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() { _ = pubSub.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	messages, err := pubSub.Subscribe(ctx, DefaultTopic)
	require.NoError(t, err)

	publisher := NewWatermillPublisher(pubSub, "")
	require.Equal(t, DefaultTopic, publisher.Topic())

	err = publisher.PublishSecurityEvent(ctx, ports.SecurityEvent{
		Type:     ports.EventSourceBlocked,
		Source:   "10.0.0.0",
		Failures: 5,
	})
	require.NoError(t, err)

	select {
	case msg := <-messages:
		msg.Ack()
		assert.Equal(t, ports.EventSourceBlocked, msg.Metadata.Get("event_type"))

		var event ports.SecurityEvent
		require.NoError(t, json.Unmarshal(msg.Payload, &event))
		assert.Equal(t, ports.EventSourceBlocked, event.Type)
		assert.Equal(t, "10.0.0.0", event.Source)
		assert.Equal(t, 5, event.Failures)
		assert.False(t, event.OccurredAt.IsZero())
	case <-ctx.Done():
		t.Fatal("event was not delivered")
	}
}

func TestPublishAfterCloseFails(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	require.NoError(t, pubSub.Close())

	err := NewWatermillPublisher(pubSub, "custom").PublishSecurityEvent(context.Background(), ports.SecurityEvent{Type: ports.EventLoginSucceeded})
	assert.Error(t, err)
}
