// internal/events/publisher.go
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/streadway/amqp"

	"github.com/zapvia/wadispatch-backend/internal/model"
)

// OutcomeEvent is published after every dispatch attempt so CRM
// collaborators can persist and display delivery results.
type OutcomeEvent struct {
	EventID      string     `json:"event_id"`
	Type         string     `json:"type"`
	CampaignID   int        `json:"campaign_id"`
	ItemID       int        `json:"item_id"`
	ContactID    int        `json:"contact_id"`
	ConnectionID string     `json:"connection_id"`
	Phone        string     `json:"phone"`
	Status       string     `json:"status"`
	Error        string     `json:"error,omitempty"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
}

// LifecycleEvent reports a campaign status change.
type LifecycleEvent struct {
	EventID    string    `json:"event_id"`
	Type       string    `json:"type"`
	CampaignID int       `json:"campaign_id"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Timestamp  time.Time `json:"timestamp"`
}

// Publisher pushes campaign events onto a RabbitMQ queue. When no broker
// URL is configured it stays disabled and every publish is a no-op, so
// the dispatcher never depends on the broker being up.
type Publisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
	enabled bool
}

func NewPublisher(url, queue string) *Publisher {
	p := &Publisher{queue: queue}
	if url == "" {
		log.Info().Msg("RABBITMQ_URL is not set, event publishing disabled")
		return p
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		log.Error().Err(err).Msg("could not connect to RabbitMQ, event publishing disabled")
		return p
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		log.Error().Err(err).Msg("could not open RabbitMQ channel, event publishing disabled")
		return p
	}
	if _, err := channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		log.Error().Err(err).Str("queue", queue).Msg("could not declare RabbitMQ queue, event publishing disabled")
		return p
	}

	p.conn = conn
	p.channel = channel
	p.enabled = true
	log.Info().Str("queue", queue).Msg("RabbitMQ connection established")
	return p
}

// ItemDispatched implements dispatch.Notifier.
func (p *Publisher) ItemDispatched(campaign *model.Campaign, item *model.DispatchItem) {
	p.publish(OutcomeEvent{
		EventID:      uuid.NewString(),
		Type:         "dispatch_outcome",
		CampaignID:   item.CampaignID,
		ItemID:       item.ID,
		ContactID:    item.ContactID,
		ConnectionID: campaign.ConnectionID,
		Phone:        item.Phone,
		Status:       string(item.Status),
		Error:        item.ErrorMessage,
		SentAt:       item.SentAt,
		Timestamp:    time.Now(),
	})
}

// CampaignStatusChanged implements dispatch.Notifier.
func (p *Publisher) CampaignStatusChanged(campaignID int, from, to model.CampaignStatus) {
	p.publish(LifecycleEvent{
		EventID:    uuid.NewString(),
		Type:       "campaign_status",
		CampaignID: campaignID,
		From:       string(from),
		To:         string(to),
		Timestamp:  time.Now(),
	})
}

func (p *Publisher) publish(event any) {
	if !p.enabled {
		return
	}

	body, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("could not marshal event")
		return
	}

	err = p.channel.Publish(
		"",      // exchange (default)
		p.queue, // routing key = queue
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
	if err != nil {
		log.Error().Err(err).Str("queue", p.queue).Msg("could not publish event")
	}
}

func (p *Publisher) Close() {
	if !p.enabled {
		return
	}
	p.channel.Close()
	p.conn.Close()
}
