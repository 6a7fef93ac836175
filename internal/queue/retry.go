package queue

import (
	"errors"

	"github.com/rabbitmq/amqp091-go"

	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/common"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/logger"
)

// MaxRetries is how often a message is retried before it goes to the DLQ.
const MaxRetries = 10

const retriesHeader = "x-retries"

// ErrInvalidJob marks a message body that is not a usable job.
var ErrInvalidJob = errors.New("invalid prefetch job")

// IsPermanent reports whether retrying err cannot succeed: the job or its
// virtual names are malformed, or the archive data cannot be combined.
func IsPermanent(err error) bool {
	for _, target := range []error{
		ErrInvalidJob,
		common.ErrFormat,
		common.ErrInvalidOption,
		common.ErrUnsupportedComposite,
		common.ErrNotImplemented,
		common.ErrInconsistentTimebase,
		common.ErrShape,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Acknowledger is the part of amqp091.Delivery needed to settle a message.
type Acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func retriesFrom(headers amqp091.Table) int {
	switch v := headers[retriesHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// HandleProcessingError moves a failed message to <queue>_retry, or to
// <queue>_dlq once it has been retried MaxRetries times or when cause is
// permanent.
func HandleProcessingError(ch Publisher, msg amqp091.Delivery, queueName string, cause error) {
	handleProcessingError(ch, &msg, msg.Body, msg.Headers, queueName, cause)
}

func handleProcessingError(ch Publisher, ack Acknowledger, body []byte, headers amqp091.Table, queueName string, cause error) {
	retries := retriesFrom(headers)

	target := queueName + "_retry"
	next := amqp091.Table{}
	for k, v := range headers {
		next[k] = v
	}
	switch {
	case IsPermanent(cause):
		target = queueName + "_dlq"
		logger.Info("Sending message to DLQ without retry", "dlq", target, "err", cause)
	case retries >= MaxRetries:
		target = queueName + "_dlq"
		logger.Info("Sending message to DLQ", "dlq", target)
	default:
		next[retriesHeader] = int32(retries + 1)
	}

	pubErr := ch.Publish(
		"",
		target,
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         body,
			Headers:      next,
			DeliveryMode: amqp091.Persistent,
		},
	)
	if pubErr != nil {
		logger.Error("Failed to publish failed message", "queue", target, "err", pubErr)
		ack.Nack(false, true)
		return
	}
	ack.Ack(false)
}
