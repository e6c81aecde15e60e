package notify

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	publisher "github.com/Azure/azure-sdk-for-go/sdk/messaging/eventgrid/azeventgrid"

	"ghstats/models"
)

const eventDataVersion = "1.0"

type EventGridPublisher struct {
	client *publisher.Client
}

// NewEventGridPublisher publishes to a topic endpoint authenticated by its access key.
func NewEventGridPublisher(endpoint, key string, client *http.Client) (*EventGridPublisher, error) {
	opts := &publisher.ClientOptions{}
	if client != nil {
		opts.Transport = client
	}
	return newEventGridPublisher(endpoint, key, opts)
}

func newEventGridPublisher(endpoint, key string, opts *publisher.ClientOptions) (*EventGridPublisher, error) {
	client, err := publisher.NewClientWithSharedKeyCredential(endpoint, azcore.NewKeyCredential(key), opts)
	if err != nil {
		return nil, fmt.Errorf("event grid client: %w", err)
	}
	return &EventGridPublisher{client: client}, nil
}

func toEventGridEvent(event models.RunEvent) publisher.Event {
	return publisher.Event{
		ID:          to.Ptr(event.ID),
		Subject:     to.Ptr(event.Subject),
		EventType:   to.Ptr(event.EventType),
		EventTime:   to.Ptr(event.EventTime),
		DataVersion: to.Ptr(eventDataVersion),
		Data:        event.Data,
	}
}

// Publish sends the event as a single-element batch.
func (p *EventGridPublisher) Publish(ctx context.Context, event models.RunEvent) error {
	if _, err := p.client.PublishEvents(ctx, []publisher.Event{toEventGridEvent(event)}, nil); err != nil {
		return fmt.Errorf("publish event %s: %w", event.ID, err)
	}
	return nil
}
