package rabbitmq

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
)

// MembershipChanged сообщение об изменении членства для внешних
// потребителей очереди.
type MembershipChanged struct {
	SubjectID string    `json:"subject_id"`
	Status    string    `json:"status"`
	Event     string    `json:"event"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher публикует события членства в обменник entitlements.
type Publisher struct {
	ch *amqp.Channel
}

// NewPublisher создает Publisher поверх настроенного канала.
func NewPublisher(ch *amqp.Channel) *Publisher {
	return &Publisher{ch: ch}
}

// PublishMembershipChanged публикует уведомление об изменении членства.
func (p *Publisher) PublishMembershipChanged(msg MembershipChanged) error {
	const op = "rabbitmq.PublishMembershipChanged"
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = p.ch.Publish(
		Exchange,
		MembershipRoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    uuid.NewString(),
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
