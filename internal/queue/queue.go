package queue

import (
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/fusion-flap/flap-w7x-mdsplus/internal/util"
)

// PrefetchQueue carries PrefetchJob messages.
const PrefetchQueue = "prefetch_queue"

// Queues lists every work queue the worker consumes.
var Queues = []string{PrefetchQueue}

// retryDelay is how long a failed message waits in its _retry queue.
const retryDelay = 10 * time.Second

func Init() (*amqp091.Connection, error) {
	user := util.GetEnvString("RABBITMQ_USER", "guest")
	pass := util.GetEnvString("RABBITMQ_PASSWORD", "guest")
	host := util.GetEnvString("RABBITMQ_HOST", "localhost")
	port := util.GetEnvString("RABBITMQ_PORT", "5672")

	connURL := fmt.Sprintf(
		"amqp://%s:%s@%s:%s/",
		user,
		pass,
		host,
		port,
	)

	conn, err := amqp091.Dial(connURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	return conn, nil
}

// SetupQueues declares each queue with its dead-letter queue (<name>_dlq)
// and its retry queue (<name>_retry), which hands messages back to the
// work queue after retryDelay.
func SetupQueues(ch *amqp091.Channel, queueNames []string) error {
	for _, name := range queueNames {
		_, err := ch.QueueDeclare(
			name,
			true,  // durable
			false, // autoDelete
			false, // exclusive
			false, // noWait
			nil,   // args
		)
		if err != nil {
			return fmt.Errorf("QueueDeclare %s failed: %w", name, err)
		}

		dlqName := name + "_dlq"
		_, err = ch.QueueDeclare(
			dlqName,
			true,
			false,
			false,
			false,
			nil,
		)
		if err != nil {
			return fmt.Errorf("QueueDeclare %s failed: %w", dlqName, err)
		}

		retryName := name + "_retry"
		_, err = ch.QueueDeclare(
			retryName,
			true,
			false,
			false,
			false,
			amqp091.Table{
				"x-message-ttl":             int32(retryDelay / time.Millisecond),
				"x-dead-letter-exchange":    "",
				"x-dead-letter-routing-key": name,
			},
		)
		if err != nil {
			return fmt.Errorf("QueueDeclare %s failed: %w", retryName, err)
		}
	}

	return nil
}

// Publisher is the part of *amqp091.Channel used to publish.
type Publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

func PublishFIFO(ch Publisher, queueName string, data []byte) error {
	return ch.Publish(
		"",
		queueName,
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         data,
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
		},
	)
}
