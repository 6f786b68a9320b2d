// Package worker содержит фоновых обработчиков очереди заданий.
// Общий цикл потребления разбирает исходы обработки: успех подтверждает
// задание, неустранимая ошибка отбрасывает его с записью в лог, временная
// ведет к повторной доставке в пределах бюджета попыток.
package worker

import (
	"context"
	"fmt"
	"log"

	"orbitdrive/internal/queue"
)

// maxAttempts — бюджет попыток на задание, после него — dead-letter
const maxAttempts = 5

// Handler обрабатывает одно задание. Подтверждением и возвратом
// занимается цикл, обработчик не трогает Ack/Nack.
type Handler func(ctx context.Context, d queue.Delivery) error

type Worker struct {
	queue  queue.Queue
	lane   string
	handle Handler
}

func New(q queue.Queue, lane string, h Handler) *Worker {
	return &Worker{
		queue:  q,
		lane:   lane,
		handle: h,
	}
}

// Run потребляет ленту до отмены контекста. Текущее задание дорабатывается,
// новые не берутся — мягкая остановка.
func (w *Worker) Run(ctx context.Context) error {
	deliveries, err := w.queue.Consume(ctx, w.lane)
	if err != nil {
		return fmt.Errorf("failed to consume lane %s: %w", w.lane, err)
	}

	log.Printf("[Worker] consuming lane %q", w.lane)

	for d := range deliveries {
		w.process(ctx, d)
	}

	log.Printf("[Worker] lane %q stopped", w.lane)
	return nil
}

func (w *Worker) process(ctx context.Context, d queue.Delivery) {
	err := w.safeHandle(ctx, d)

	switch {
	case err == nil:
		if err := d.Ack(); err != nil {
			log.Printf("[Worker] lane %q: ack failed: %v", w.lane, err)
		}
	case IsPermanent(err):
		// Повтор не исправит — подтверждаем и отбрасываем
		log.Printf("[Worker] lane %q: dropping job: %v", w.lane, err)
		if err := d.Ack(); err != nil {
			log.Printf("[Worker] lane %q: ack failed: %v", w.lane, err)
		}
	case d.Attempts+1 >= maxAttempts:
		log.Printf("[Worker] lane %q: retry budget exhausted (%d attempts), dead-lettering: %v",
			w.lane, d.Attempts+1, err)
		if err := d.Nack(false); err != nil {
			log.Printf("[Worker] lane %q: nack failed: %v", w.lane, err)
		}
	default:
		log.Printf("[Worker] lane %q: attempt %d failed, will retry: %v", w.lane, d.Attempts+1, err)
		if err := d.Nack(true); err != nil {
			log.Printf("[Worker] lane %q: nack failed: %v", w.lane, err)
		}
	}
}

// safeHandle не позволяет панике одного задания уронить процесс
func (w *Worker) safeHandle(ctx context.Context, d queue.Delivery) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing job: %v", r)
		}
	}()

	return w.handle(ctx, d)
}
