package notifiers

import (
	"context"
	"os"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/uks-watch/flats-monitor/internal/domain"
)

func TestGCPPubSubSenderNotifies(t *testing.T) {
	// Use the in-memory Pub/Sub emulator.
	server := pstest.NewServer()
	defer server.Close()
	defer os.Unsetenv("PUBSUB_EMULATOR_HOST")
	os.Setenv("PUBSUB_EMULATOR_HOST", server.Addr)

	ctx := context.Background()
	client, err := pubsub.NewClient(ctx, "test-project")
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	if _, err := client.CreateTopic(ctx, "topic-1"); err != nil {
		t.Fatalf("create topic: %v", err)
	}

	sender, err := newGCPPubSubSender(ctx, &GCPQueueConfig{
		ProjectID: "test-project",
		Topic:     "topic-1",
	}, nil)
	if err != nil {
		t.Fatalf("newGCPPubSubSender: %v", err)
	}

	err = sender.Notify(ctx, Event{
		SourceID: "s1",
		Listing:  domain.Listing{ID: "l1"},
	})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}

	// Close flushes the topic and releases the client.
	if err := sender.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
