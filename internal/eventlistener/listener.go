// ========================================
// File: internal/eventlistener/listener.go
// ========================================
package eventlistener

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/suimax/sui-bot/internal/chain"
)

// Handler вызывается для каждого пришедшего события подписки.
type Handler func(chain.EventRecord)

// Listener держит WebSocket-подписку suix_subscribeEvent на события одного
// Move-типа. Это best-effort канал: обрыв соединения логируется и закрывает
// подписку, владелец решает, переподключаться ли; опрос через QueryEvents
// остаётся основным путём обнаружения.
type Listener struct {
	url    string
	logger *zap.Logger

	mu   sync.Mutex
	conn *websocket.Conn
	done chan struct{}
}

// New создаёт слушатель. Соединение открывается в Subscribe; канал Done
// существует с самого начала и закрывается только завершением цикла чтения.
func New(wsURL string, logger *zap.Logger) *Listener {
	return &Listener{
		url:    wsURL,
		logger: logger.Named("eventlistener"),
		done:   make(chan struct{}),
	}
}

// subscribeRequest — JSON-RPC запрос подписки на события Move-типа.
type subscribeRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// notification — входящее сообщение подписки.
type notification struct {
	Method string `json:"method"`
	Params struct {
		Subscription json.RawMessage   `json:"subscription"`
		Result       chain.EventRecord `json:"result"`
	} `json:"params"`
}

// Subscribe открывает соединение, подписывается на eventType и запускает
// цикл чтения. Handler вызывается из одной горутины чтения.
func (l *Listener) Subscribe(ctx context.Context, eventType string, handler Handler) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, l.url, nil)
	if err != nil {
		return fmt.Errorf("eventlistener: dial %s: %w", l.url, err)
	}

	req := subscribeRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "suix_subscribeEvent",
		Params: []interface{}{
			map[string]interface{}{"MoveEventType": eventType},
		},
	}
	if err := conn.WriteJSON(req); err != nil {
		conn.Close()
		return fmt.Errorf("eventlistener: subscribe: %w", err)
	}

	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()

	go l.readLoop(conn, eventType, handler)

	l.logger.Info("Подписка на события открыта", zap.String("event_type", eventType))
	return nil
}

func (l *Listener) readLoop(conn *websocket.Conn, eventType string, handler Handler) {
	defer close(l.done)
	for {
		var msg notification
		if err := conn.ReadJSON(&msg); err != nil {
			l.logger.Warn("Чтение из WebSocket прервано",
				zap.String("event_type", eventType), zap.Error(err))
			return
		}
		// Ответ на сам запрос подписки приходит без method.
		if msg.Method == "" {
			continue
		}
		handler(msg.Params.Result)
	}
}

// Done закрывается, когда цикл чтения завершился.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

// Close завершает подписку и соединение.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	err := l.conn.Close()
	l.conn = nil
	return err
}
