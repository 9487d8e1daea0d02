package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"EarnScan/internal/domain/models"
	drepo "EarnScan/internal/domain/repository"
	applogger "EarnScan/pkg/logger"

	"github.com/gorilla/websocket"
)

// Stream implements a QuoteStream over a trade-feed WebSocket. Subscriptions
// are dynamic: serve mode re-subscribes to each scan day's candidate universe.
type Stream struct {
	apiKey         string
	websocketURL   string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	logger         *applogger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	symbols   []string
}

// New creates a WebSocket QuoteStream.
func New(apiKey, websocketURL string, reconnectDelay, pingInterval time.Duration, l *applogger.Logger) drepo.QuoteStream {
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}
	if pingInterval <= 0 {
		pingInterval = 20 * time.Second
	}
	return &Stream{
		apiKey:         apiKey,
		websocketURL:   websocketURL,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		logger:         l,
	}
}

// current returns the connection under the lock. The bool is false when the
// stream was never connected or has been closed.
func (s *Stream) current() (*websocket.Conn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn, s.connected && s.conn != nil
}

// Connect establishes the WebSocket connection.
func (s *Stream) Connect(ctx context.Context) error {
	u := fmt.Sprintf("%s?token=%s", s.websocketURL, s.apiKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("quote stream connect: %w", err)
	}
	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()
	s.logger.Info("quote stream connected")
	return nil
}

// Subscribe replaces the subscription set with the given symbols.
func (s *Stream) Subscribe(ctx context.Context, symbols []string) error {
	s.mu.Lock()
	conn, connected := s.conn, s.connected
	prev := s.symbols
	s.symbols = append([]string(nil), symbols...)
	s.mu.Unlock()

	if conn == nil || !connected {
		return fmt.Errorf("quote stream not connected")
	}
	if err := sendControl(conn, "unsubscribe", prev); err != nil {
		return err
	}
	if err := sendControl(conn, "subscribe", symbols); err != nil {
		return err
	}
	s.logger.Info("quote stream subscribed", applogger.Int("symbols", len(symbols)))
	return nil
}

// sendControl writes one {type, symbol} control frame per symbol.
func sendControl(conn *websocket.Conn, action string, symbols []string) error {
	for _, sym := range symbols {
		if err := conn.WriteJSON(map[string]string{"type": action, "symbol": sym}); err != nil {
			return fmt.Errorf("%s %s: %w", action, sym, err)
		}
	}
	return nil
}

type wsTrade struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	V float64 `json:"v"`
	T int64   `json:"t"` // ms
}

type wsMessage struct {
	Type string    `json:"type"`
	Data []wsTrade `json:"data"`
}

// Read streams last-price quotes and errors. Non-trade frames are ignored and
// quotes are dropped rather than blocking when the consumer lags.
func (s *Stream) Read(ctx context.Context) (<-chan *models.Quote, <-chan error) {
	quotes := make(chan *models.Quote, 1024)
	errs := make(chan error, 1)
	go s.pingLoop(ctx)
	go s.readLoop(ctx, quotes, errs)
	return quotes, errs
}

// pingLoop keeps the connection alive. Write failures are left for the read
// loop to surface.
func (s *Stream) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if conn, ok := s.current(); ok {
				_ = conn.WriteMessage(websocket.PingMessage, nil)
			}
		}
	}
}

func (s *Stream) readLoop(ctx context.Context, quotes chan<- *models.Quote, errs chan<- error) {
	defer close(quotes)
	defer close(errs)
	for ctx.Err() == nil {
		conn, ok := s.current()
		if !ok {
			errs <- fmt.Errorf("quote stream conn nil")
			return
		}
		_, b, err := conn.ReadMessage()
		if err != nil {
			errs <- fmt.Errorf("quote stream read: %w", err)
			return
		}
		s.fanOut(b, quotes)
	}
}

// fanOut decodes one frame and pushes its ticks, dropping on backpressure.
func (s *Stream) fanOut(frame []byte, quotes chan<- *models.Quote) {
	var m wsMessage
	if err := json.Unmarshal(frame, &m); err != nil {
		return
	}
	if m.Type != "trade" {
		return
	}
	for _, d := range m.Data {
		q := &models.Quote{
			Symbol: d.S,
			Price:  d.P,
			AsOf:   time.UnixMilli(d.T),
		}
		select {
		case quotes <- q:
		default:
		}
	}
}

// Reconnect closes, waits, and re-establishes connection plus subscriptions.
func (s *Stream) Reconnect(ctx context.Context) error {
	_ = s.Close()
	select {
	case <-time.After(s.reconnectDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := s.Connect(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	symbols := append([]string(nil), s.symbols...)
	s.symbols = nil
	s.mu.Unlock()
	return s.Subscribe(ctx, symbols)
}

// Close closes the WS connection.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	return nil
}

// IsConnected reports whether Connect has succeeded and Close has not run.
func (s *Stream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}
