package queue

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Заголовок с номером попытки доставки
const attemptsHeader = "x-attempts"

// deadSuffix — суффикс ленты, куда попадают задания, исчерпавшие попытки
const deadSuffix = ".dead"

// RabbitQueue реализует Queue поверх RabbitMQ
type RabbitQueue struct {
	conn  *amqp.Connection
	pubCh *amqp.Channel

	mu       sync.Mutex
	declared map[string]bool
}

// NewRabbitQueue подключается к брокеру с повторными попытками
func NewRabbitQueue(rabbitURL string) (*RabbitQueue, error) {
	conn, err := connectWithRetry(rabbitURL, 10, 5*time.Second)
	if err != nil {
		return nil, err
	}

	pubCh, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	return &RabbitQueue{
		conn:     conn,
		pubCh:    pubCh,
		declared: make(map[string]bool),
	}, nil
}

func connectWithRetry(url string, maxAttempts int, delay time.Duration) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error

	for i := 0; i < maxAttempts; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			return conn, nil
		}

		log.Printf("Failed to connect to RabbitMQ (attempt %d/%d): %v", i+1, maxAttempts, err)
		time.Sleep(delay)
	}

	return nil, fmt.Errorf("failed to connect after %d attempts: %w", maxAttempts, err)
}

// declareLane объявляет долговременную ленту и её dead-letter-пару
func (q *RabbitQueue) declareLane(lane string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.declared[lane] {
		return nil
	}

	for _, name := range []string{lane, lane + deadSuffix} {
		_, err := q.pubCh.QueueDeclare(
			name,
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", name, err)
		}
	}

	q.declared[lane] = true
	return nil
}

func (q *RabbitQueue) publish(ctx context.Context, lane string, payload []byte, attempts int, enqueuedAt time.Time) error {
	return q.pubCh.PublishWithContext(ctx,
		"",    // exchange
		lane,  // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp.Persistent,
			Timestamp:    enqueuedAt,
			Headers:      amqp.Table{attemptsHeader: int32(attempts)},
		},
	)
}

func (q *RabbitQueue) Enqueue(ctx context.Context, lane string, payload []byte) error {
	if err := q.declareLane(lane); err != nil {
		return err
	}

	if err := q.publish(ctx, lane, payload, 0, time.Now()); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

func (q *RabbitQueue) Consume(ctx context.Context, lane string) (<-chan Delivery, error) {
	if err := q.declareLane(lane); err != nil {
		return nil, err
	}

	// Отдельный канал на консьюмера, чтобы Qos действовал независимо
	ch, err := q.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open consumer channel: %w", err)
	}

	if err := ch.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		lane,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}

	out := make(chan Delivery)

	go func() {
		defer close(out)
		defer ch.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}

				d := q.wrap(lane, msg)
				select {
				case out <- d:
				case <-ctx.Done():
					// Возвращаем неврученное задание брокеру
					msg.Nack(false, true)
					return
				}
			}
		}
	}()

	return out, nil
}

// wrap переводит доставку AMQP в контракт очереди. Повторная доставка
// реализована перепубликацией с увеличенным счетчиком попыток: брокерский
// nack не сохраняет заголовки между попытками.
func (q *RabbitQueue) wrap(lane string, msg amqp.Delivery) Delivery {
	attempts := 0
	if v, ok := msg.Headers[attemptsHeader]; ok {
		switch n := v.(type) {
		case int32:
			attempts = int(n)
		case int64:
			attempts = int(n)
		case int:
			attempts = n
		}
	}

	enqueuedAt := msg.Timestamp
	if enqueuedAt.IsZero() {
		enqueuedAt = time.Now()
	}

	return Delivery{
		Body:       msg.Body,
		Attempts:   attempts,
		EnqueuedAt: enqueuedAt,
		ack: func() error {
			return msg.Ack(false)
		},
		nack: func(requeue bool) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if requeue {
				if err := q.publish(ctx, lane, msg.Body, attempts+1, enqueuedAt); err != nil {
					// Перепубликация не удалась — возвращаем задание брокеру как есть
					return msg.Nack(false, true)
				}
			} else {
				if err := q.publish(ctx, lane+deadSuffix, msg.Body, attempts, enqueuedAt); err != nil {
					return msg.Nack(false, true)
				}
			}
			return msg.Ack(false)
		},
	}
}

func (q *RabbitQueue) Close() error {
	if q.pubCh != nil {
		q.pubCh.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
