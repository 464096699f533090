package consumer

import (
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestEventMeta_PrefersHeaders(t *testing.T) {
	msg := kafka.Message{
		Topic: "payments.payment.updated.v1",
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte("evt-42")},
			{Key: "event_type", Value: []byte("payment.updated")},
		},
	}
	id, typ := eventMeta(msg)
	if id != "evt-42" || typ != "payment.updated" {
		t.Fatalf("eventMeta = (%q, %q), want headers used", id, typ)
	}
}

func TestEventMeta_FallsBackToPartitionCoordinates(t *testing.T) {
	msg := kafka.Message{Topic: "payments.payment.updated.v1", Partition: 3, Offset: 117}
	id, typ := eventMeta(msg)
	if id != "payments.payment.updated.v1:3:117" {
		t.Fatalf("event id = %q", id)
	}
	if typ != "payments.payment.updated.v1" {
		t.Fatalf("event type = %q", typ)
	}
}

func TestSplitBrokers(t *testing.T) {
	got := splitBrokers(" kafka-1:9092, ,kafka-2:9092 ")
	if len(got) != 2 || got[0] != "kafka-1:9092" || got[1] != "kafka-2:9092" {
		t.Fatalf("splitBrokers = %v", got)
	}
}
