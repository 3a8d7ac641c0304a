// Package rabbitmq публикует уведомления об изменениях членств в
// RabbitMQ. Очередь читают внешние коллабораторы: рассыльщик уведомлений
// и дашборды.
package rabbitmq

import (
	"fmt"
	"time"

	"github.com/streadway/amqp"
)

// Exchange имя обменника уведомлений о членствах.
const Exchange = "entitlements"

// MembershipQueue очередь событий изменения членства.
const MembershipQueue = "membership_events"

// MembershipRoutingKey ключ маршрутизации событий членства.
const MembershipRoutingKey = "membership.changed"

// Connect подключается к RabbitMQ с повторными попытками.
func Connect(connection string, retries int, delay time.Duration) (*amqp.Connection, error) {
	const op = "rabbitmq.Connect"
	var conn *amqp.Connection
	var err error

	for range retries {
		conn, err = amqp.Dial(connection)
		if err == nil {
			return conn, nil
		}
		time.Sleep(delay)
	}

	return nil, fmt.Errorf("%s: %w", op, err)
}

// SetupChannel открывает канал и объявляет обменник и очередь событий
// членства.
func SetupChannel(conn *amqp.Connection) (*amqp.Channel, error) {
	const op = "rabbitmq.SetupChannel"

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	err = ch.ExchangeDeclare(
		Exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := ch.QueueDeclare(
		MembershipQueue,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return nil, fmt.Errorf("%s: failed to declare queue %s: %w", op, MembershipQueue, err)
	}

	if err := ch.QueueBind(
		MembershipQueue,
		MembershipRoutingKey,
		Exchange,
		false,
		nil,
	); err != nil {
		return nil, fmt.Errorf("%s: failed to bind queue %s: %w", op, MembershipQueue, err)
	}

	return ch, nil
}
