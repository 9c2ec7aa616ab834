package worker

import (
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDelivery_FullEnvelope(t *testing.T) {
	d := amqp.Delivery{Body: []byte(`{"id":"evt-1","topic":"submission_judged","payload":{"submission_id":42}}`)}

	event, err := decodeDelivery(d)
	require.NoError(t, err)

	assert.Equal(t, "evt-1", event.ID)
	assert.Equal(t, "submission_judged", event.Topic)
	assert.JSONEq(t, `{"submission_id":42}`, string(event.Payload))
}

func TestDecodeDelivery_MissingIDUsesMessageID(t *testing.T) {
	d := amqp.Delivery{
		MessageId: "msg-7",
		Body:      []byte(`{"topic":"contest_started"}`),
	}

	event, err := decodeDelivery(d)
	require.NoError(t, err)
	assert.Equal(t, "msg-7", event.ID)
}

func TestDecodeDelivery_MissingIDGenerated(t *testing.T) {
	d := amqp.Delivery{Body: []byte(`{"topic":"contest_started"}`)}

	event, err := decodeDelivery(d)
	require.NoError(t, err)
	assert.NotEmpty(t, event.ID)
}

func TestDecodeDelivery_Malformed(t *testing.T) {
	for name, body := range map[string][]byte{
		"not json":     []byte("garbage"),
		"empty":        nil,
		"no topic":     []byte(`{"payload":{}}`),
		"wrong shapes": []byte(`{"topic":123}`),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := decodeDelivery(amqp.Delivery{Body: body})
			assert.Error(t, err)
		})
	}
}
