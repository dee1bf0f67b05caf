//go:build integration

package push

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAMQPGateway_PublishesConfirmedRequest(t *testing.T) {
	url := os.Getenv("TEST_AMQP_URL")
	if url == "" {
		t.Skip("TEST_AMQP_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	gw, err := NewAMQPGateway(ctx, AMQPOptions{URL: url, Exchange: "test.push", RoutingKey: "push", RetryAttempts: 3}, discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Close() })

	// очередь для проверки, привязана только к звонкам
	ch, err := gw.conn.Channel()
	require.NoError(t, err)
	defer ch.Close()
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	require.NoError(t, err)
	require.NoError(t, ch.QueueBind(q.Name, "push.incoming_call", "test.push", false, nil))
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	require.NoError(t, err)

	require.NoError(t, gw.Send(ctx, Message{Token: "tok", Kind: KindIncomingCall, Title: "Dr. Vet", HighPriority: true, TTL: 30 * time.Second}))

	select {
	case d := <-deliveries:
		assert.Equal(t, "application/json", d.ContentType)
		assert.Equal(t, amqp091.Persistent, d.DeliveryMode)
		assert.Equal(t, "30000", d.Expiration)
		var req amqpRequest
		require.NoError(t, json.Unmarshal(d.Body, &req))
		assert.Equal(t, d.MessageId, req.ID)
		assert.Equal(t, "tok", req.Message.Token)
	case <-ctx.Done():
		t.Fatal("no delivery")
	}
}
