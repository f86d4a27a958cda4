package queue

import (
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"proteinshake/internal/config"
	"proteinshake/pkg/logger"
)

const (
	BuildQueue       = "build_queue"
	ProgressExchange = "build_progress"

	retryDelay = 10 * time.Second
)

// Publisher is the part of *amqp091.Channel used to send messages.
type Publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

func Connect(cfg config.RabbitMQConfig) (*amqp091.Connection, error) {
	conn, err := amqp091.Dial(cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

// SetupQueues declares every queue with its retry queue, which dead-letters
// back into the queue after retryDelay, and its dead-letter queue, plus the
// progress exchange.
func SetupQueues(ch *amqp091.Channel, queueNames []string) error {
	if err := ch.ExchangeDeclare(ProgressExchange, "topic", false, true, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", ProgressExchange, err)
	}

	for _, name := range queueNames {
		declare := []struct {
			name string
			args amqp091.Table
		}{
			{name: name},
			{name: name + "_dlq"},
			{name: name + "_retry", args: amqp091.Table{
				"x-message-ttl":             int32(retryDelay.Milliseconds()),
				"x-dead-letter-exchange":    "",
				"x-dead-letter-routing-key": name,
			}},
		}
		for _, q := range declare {
			if _, err := ch.QueueDeclare(q.name, true, false, false, false, q.args); err != nil {
				return fmt.Errorf("failed to declare queue %s: %w", q.name, err)
			}
		}
		logger.Debug("[Queue] Declared queue", "queue", name)
	}
	return nil
}

func PublishFIFO(p Publisher, queueName string, data []byte) error {
	return p.Publish("", queueName, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		Body:         data,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
	})
}

func PublishTopic(p Publisher, topic string, data []byte) error {
	return p.Publish(ProgressExchange, topic, false, false, amqp091.Publishing{
		ContentType: "application/json",
		Body:        data,
		Timestamp:   time.Now(),
	})
}

// ProgressTopic is the routing key progress of build id is published on.
func ProgressTopic(id string) string {
	return "build." + id + ".progress"
}
