package alerting

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ehr/healthmetrics/internal/platform/websocket"
)

// EventAlertCreated is the push event type for a newly written alert.
const EventAlertCreated = "alert.created"

// EventSink accepts push events; *websocket.Hub implements it.
type EventSink interface {
	Publish(ctx context.Context, event websocket.Event) error
}

// HubPublisher sends each new alert to its subject's topic, and high or
// critical alerts to the staff feed as well.
type HubPublisher struct {
	sink EventSink
}

func NewHubPublisher(sink EventSink) *HubPublisher {
	return &HubPublisher{sink: sink}
}

func (p *HubPublisher) PublishAlert(ctx context.Context, a *Alert) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert %s: %w", a.ID, err)
	}

	topics := []string{websocket.SubjectTopic(a.SubjectID)}
	if a.Severity == SeverityHigh || a.Severity == SeverityCritical {
		topics = append(topics, websocket.TopicStaff)
	}
	for _, topic := range topics {
		ev := websocket.Event{
			Type:      EventAlertCreated,
			Topic:     topic,
			Timestamp: a.TriggeredAt,
			Data:      data,
		}
		if err := p.sink.Publish(ctx, ev); err != nil {
			return fmt.Errorf("publish alert %s to %s: %w", a.ID, topic, err)
		}
	}
	return nil
}
