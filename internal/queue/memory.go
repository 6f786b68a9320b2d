package queue

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const defaultLeaseTTL = 30 * time.Second

// MemoryQueue — очередь в памяти с теми же контрактными гарантиями, что и
// брокерная: аренда на время обработки, передоставка по истечении аренды,
// счетчик попыток, dead-letter. Используется в тестах и в режиме локальной
// разработки без брокера. Долговременность ограничена временем жизни процесса.
type MemoryQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	lanes  map[string]*memLane
	closed bool

	leaseTTL time.Duration
}

type memJob struct {
	body       []byte
	attempts   int
	enqueuedAt time.Time
}

type memLane struct {
	pending []*memJob
	dead    []*memJob
}

func NewMemoryQueue(leaseTTL time.Duration) *MemoryQueue {
	if leaseTTL <= 0 {
		leaseTTL = defaultLeaseTTL
	}
	q := &MemoryQueue{
		lanes:    make(map[string]*memLane),
		leaseTTL: leaseTTL,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// lane возвращает ленту по имени. Вызывающий держит q.mu.
func (q *MemoryQueue) lane(name string) *memLane {
	l, ok := q.lanes[name]
	if !ok {
		l = &memLane{}
		q.lanes[name] = l
	}
	return l
}

func (q *MemoryQueue) Enqueue(ctx context.Context, lane string, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return fmt.Errorf("queue is closed")
	}

	body := make([]byte, len(payload))
	copy(body, payload)

	q.lane(lane).pending = append(q.lane(lane).pending, &memJob{
		body:       body,
		enqueuedAt: time.Now(),
	})
	q.cond.Broadcast()
	return nil
}

func (q *MemoryQueue) Consume(ctx context.Context, lane string) (<-chan Delivery, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, fmt.Errorf("queue is closed")
	}
	q.mu.Unlock()

	// Будим ожидающих консьюмеров при отмене контекста
	go func() {
		<-ctx.Done()
		q.cond.Broadcast()
	}()

	out := make(chan Delivery)

	go func() {
		defer close(out)
		for {
			job := q.next(ctx, lane)
			if job == nil {
				return
			}

			select {
			case out <- q.deliver(lane, job):
			case <-ctx.Done():
				// Задание никому не вручено — возвращаем без штрафа
				q.push(lane, job)
				return
			}
		}
	}()

	return out, nil
}

// next блокируется до появления задания либо отмены контекста
func (q *MemoryQueue) next(ctx context.Context, lane string) *memJob {
	q.mu.Lock()
	defer q.mu.Unlock()

	l := q.lane(lane)
	for len(l.pending) == 0 {
		if ctx.Err() != nil || q.closed {
			return nil
		}
		q.cond.Wait()
	}

	job := l.pending[0]
	l.pending = l.pending[1:]
	return job
}

// deliver выдает задание в аренду: ровно один исход — ack, nack или
// истечение аренды с передоставкой.
func (q *MemoryQueue) deliver(lane string, job *memJob) Delivery {
	var once sync.Once
	var timer *time.Timer

	settle := func(outcome func()) {
		once.Do(func() {
			if timer != nil {
				timer.Stop()
			}
			outcome()
		})
	}

	timer = time.AfterFunc(q.leaseTTL, func() {
		settle(func() {
			q.push(lane, &memJob{body: job.body, attempts: job.attempts + 1, enqueuedAt: job.enqueuedAt})
		})
	})

	return Delivery{
		Body:       job.body,
		Attempts:   job.attempts,
		EnqueuedAt: job.enqueuedAt,
		ack: func() error {
			settle(func() {})
			return nil
		},
		nack: func(requeue bool) error {
			settle(func() {
				if requeue {
					q.push(lane, &memJob{body: job.body, attempts: job.attempts + 1, enqueuedAt: job.enqueuedAt})
				} else {
					q.pushDead(lane, job)
				}
			})
			return nil
		},
	}
}

func (q *MemoryQueue) push(lane string, job *memJob) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.lane(lane).pending = append(q.lane(lane).pending, job)
	q.cond.Broadcast()
}

func (q *MemoryQueue) pushDead(lane string, job *memJob) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lane(lane).dead = append(q.lane(lane).dead, job)
}

// Len возвращает число заданий, ожидающих доставки
func (q *MemoryQueue) Len(lane string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.lane(lane).pending)
}

// DeadLetters возвращает тела заданий, исчерпавших попытки
func (q *MemoryQueue) DeadLetters(lane string) [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()

	var bodies [][]byte
	for _, job := range q.lane(lane).dead {
		bodies = append(bodies, job.body)
	}
	return bodies
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
	return nil
}
