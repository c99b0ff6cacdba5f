// internal/events/bus.go
package events

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Bus — буферизованная in-memory шина событий. Реализует Sink.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Type][]Handler
	all      []Handler

	logger *zap.Logger
	ch     chan Event
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBus создаёт шину и запускает цикл доставки.
func NewBus(logger *zap.Logger, bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		handlers: make(map[Type][]Handler),
		logger:   logger.Named("event_bus"),
		ch:       make(chan Event, bufferSize),
		ctx:      ctx,
		cancel:   cancel,
	}
	b.wg.Add(1)
	go b.loop()
	return b
}

// Subscribe регистрирует обработчик для события заданного типа.
func (b *Bus) Subscribe(t Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], h)
}

// SubscribeAll регистрирует обработчик для всех событий.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

// Emit ставит событие в очередь доставки. Не блокирует: при переполненном
// буфере событие отбрасывается с предупреждением в лог.
func (b *Bus) Emit(e Event) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	select {
	case <-b.ctx.Done():
	case b.ch <- e:
	default:
		b.logger.Warn("Буфер событий переполнен, событие отброшено",
			zap.String("event_type", string(e.Type)))
	}
}

func (b *Bus) loop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			// Доставляем накопившееся перед выходом.
			for {
				select {
				case e := <-b.ch:
					b.dispatch(e)
				default:
					return
				}
			}
		case e := <-b.ch:
			b.dispatch(e)
		}
	}
}

func (b *Bus) dispatch(e Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers[e.Type])+len(b.all))
	handlers = append(handlers, b.handlers[e.Type]...)
	handlers = append(handlers, b.all...)
	b.mu.RUnlock()

	for _, h := range handlers {
		h.Handle(e)
	}
}

// Shutdown останавливает шину, дождавшись доставки либо истечения контекста.
func (b *Bus) Shutdown(ctx context.Context) error {
	b.cancel()
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		b.logger.Warn("Таймаут остановки шины событий")
		return ctx.Err()
	}
}

// LogHandler возвращает обработчик, пишущий события в zap —
// стандартный подписчик для наблюдаемости.
func LogHandler(logger *zap.Logger) Handler {
	l := logger.Named("events")
	return HandlerFunc(func(e Event) {
		fields := make([]zap.Field, 0, len(e.Fields)+2)
		fields = append(fields, zap.String("event_id", e.ID), zap.Time("event_time", e.Time))
		for k, v := range e.Fields {
			fields = append(fields, zap.Any(k, v))
		}
		l.Info(string(e.Type), fields...)
	})
}
