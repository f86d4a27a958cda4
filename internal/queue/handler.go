package queue

import (
	"github.com/rabbitmq/amqp091-go"

	"proteinshake/pkg/logger"
)

const (
	retriesHeader = "x-retries"
	MaxRetries    = 10
)

func retries(msg amqp091.Delivery) int {
	switch v := msg.Headers[retriesHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// HandleFailure moves a failed delivery to the retry queue, or to the
// dead-letter queue once it was retried maxRetries times. The delivery is
// requeued if neither publish succeeds.
func HandleFailure(p Publisher, msg amqp091.Delivery, queueName string, maxRetries int) {
	n := retries(msg)
	headers := amqp091.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}

	target := queueName + "_retry"
	if n >= maxRetries {
		target = queueName + "_dlq"
		logger.Warn("[Queue] Sending message to DLQ", "dlq", target, "retries", n)
	} else {
		headers[retriesHeader] = int32(n + 1)
	}

	err := p.Publish("", target, false, false, amqp091.Publishing{
		ContentType:  msg.ContentType,
		Body:         msg.Body,
		Headers:      headers,
		DeliveryMode: amqp091.Persistent,
	})
	if err != nil {
		logger.Error("[Queue] Failed to republish message", "queue", target, "err", err)
		_ = msg.Nack(false, true)
		return
	}
	_ = msg.Ack(false)
}
