// Package queue реализует долговременную очередь заданий с доставкой
// at-least-once. Задания группируются по именованным лентам; каждое
// задание выдается не более чем одному активному консьюмеру за раз и
// должно быть явно подтверждено (Ack) или возвращено (Nack).
package queue

import (
	"context"
	"time"
)

// Delivery представляет одну попытку доставки задания консьюмеру.
// Получатель обязан вызвать Ack либо Nack; иначе задание будет
// передоставлено после истечения аренды.
type Delivery struct {
	Body       []byte
	Attempts   int       // номер попытки, начиная с нуля
	EnqueuedAt time.Time // время первоначальной постановки в очередь

	ack  func() error
	nack func(requeue bool) error
}

// Ack подтверждает успешную обработку: задание навсегда удаляется из очереди.
func (d *Delivery) Ack() error {
	return d.ack()
}

// Nack возвращает задание. При requeue=true оно станет доступным для
// повторной доставки со счетчиком попыток +1, иначе попадет в dead-letter.
func (d *Delivery) Nack(requeue bool) error {
	return d.nack(requeue)
}

// Queue определяет контракт очереди заданий
type Queue interface {
	// Enqueue добавляет задание в ленту и возвращается после
	// долговременной записи
	Enqueue(ctx context.Context, lane string, payload []byte) error
	// Consume выдает поток заданий ленты. Канал закрывается при отмене
	// контекста или закрытии очереди.
	Consume(ctx context.Context, lane string) (<-chan Delivery, error)
	Close() error
}
