package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"circlepot/internal/domain"
	"circlepot/internal/observability"
)

// graphql-transport-ws message types.
const (
	msgConnectionInit = "connection_init"
	msgConnectionAck  = "connection_ack"
	msgSubscribe      = "subscribe"
	msgNext           = "next"
	msgError          = "error"
	msgComplete       = "complete"
	msgPing           = "ping"
	msgPong           = "pong"
)

// ErrSubscriberClosed is returned by operations on a closed Subscriber.
var ErrSubscriberClosed = errors.New("subscriber closed")

// SubscriberConfig configures websocket behavior.
type SubscriberConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending protocol pings.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// Logger receives connection and decoding diagnostics.
	Logger zerolog.Logger
}

// DefaultSubscriberConfig returns default websocket configuration.
func DefaultSubscriberConfig() SubscriberConfig {
	return SubscriberConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      20 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		Logger:            zerolog.Nop(),
	}
}

// Notification carries newly indexed events of one circle.
type Notification struct {
	CircleID string
	Events   []domain.Event
	Warnings []*domain.IntegrityWarning
}

type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type subscription struct {
	circleIDs []string
	ch        chan Notification
}

// Subscriber streams newly indexed events over graphql-transport-ws.
type Subscriber struct {
	endpoint string
	config   SubscriberConfig
	logger   zerolog.Logger

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool
	nextID atomic.Uint64

	// subs maps operation id to subscriber; replayed after reconnect
	subs   map[string]subscription
	subsMu sync.RWMutex

	done         chan struct{}
	wg           sync.WaitGroup
	reconnecting atomic.Bool
}

// NewSubscriber connects to endpoint and completes the protocol handshake.
func NewSubscriber(ctx context.Context, endpoint string, config *SubscriberConfig) (*Subscriber, error) {
	cfg := DefaultSubscriberConfig()
	if config != nil {
		cfg = *config
	}

	s := &Subscriber{
		endpoint: endpoint,
		config:   cfg,
		logger:   cfg.Logger.With().Str("component", "indexer_ws").Logger(),
		subs:     make(map[string]subscription),
		done:     make(chan struct{}),
	}

	if err := s.connect(ctx); err != nil {
		return nil, err
	}

	s.wg.Add(2)
	go s.readLoop()
	go s.pingLoop()

	return s, nil
}

// connect dials and waits for connection_ack before publishing the conn.
func (s *Subscriber) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		Subprotocols:     []string{"graphql-transport-ws"},
	}

	conn, _, err := dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	// Cancelling ctx aborts the handshake below.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if err := conn.WriteJSON(wsMessage{Type: msgConnectionInit}); err != nil {
		conn.Close()
		return fmt.Errorf("write connection_init: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	var ack wsMessage
	if err := conn.ReadJSON(&ack); err != nil {
		conn.Close()
		return fmt.Errorf("read connection_ack: %w", err)
	}
	if ack.Type != msgConnectionAck {
		conn.Close()
		return fmt.Errorf("expected %s, got %s", msgConnectionAck, ack.Type)
	}
	if !stop() {
		return fmt.Errorf("websocket handshake: %w", ctx.Err())
	}

	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.closed.Load() {
		conn.Close()
		return ErrSubscriberClosed
	}
	s.conn = conn
	return nil
}

// Subscribe streams new events of the given circles until Close.
func (s *Subscriber) Subscribe(ctx context.Context, circleIDs []string) (<-chan Notification, error) {
	if s.closed.Load() {
		return nil, ErrSubscriberClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id := strconv.FormatUint(s.nextID.Add(1), 10)
	sub := subscription{
		circleIDs: append([]string(nil), circleIDs...),
		ch:        make(chan Notification, 256),
	}

	s.subsMu.Lock()
	s.subs[id] = sub
	s.subsMu.Unlock()

	if err := s.sendSubscribe(id, sub.circleIDs); err != nil {
		s.subsMu.Lock()
		delete(s.subs, id)
		s.subsMu.Unlock()
		return nil, err
	}
	return sub.ch, nil
}

func (s *Subscriber) sendSubscribe(id string, circleIDs []string) error {
	payload, err := json.Marshal(gqlRequest{
		Query:     newEventsSubscription,
		Variables: map[string]any{"circleIds": circleIDs},
	})
	if err != nil {
		return fmt.Errorf("marshal subscribe: %w", err)
	}
	if err := s.write(wsMessage{ID: id, Type: msgSubscribe, Payload: payload}); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}
	return nil
}

func (s *Subscriber) write(msg wsMessage) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("not connected")
	}
	s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	return s.conn.WriteJSON(msg)
}

// Close closes the connection and all notification channels.
func (s *Subscriber) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	close(s.done)

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()

	s.subsMu.Lock()
	for id, sub := range s.subs {
		close(sub.ch)
		delete(s.subs, id)
	}
	s.subsMu.Unlock()
	return nil
}

func (s *Subscriber) readLoop() {
	defer s.wg.Done()

	reconnectDelay := s.config.ReconnectDelay

	for !s.closed.Load() {
		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()

		if conn == nil {
			select {
			case <-s.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return
			}
			if !s.reconnecting.Swap(true) {
				s.logger.Warn().Err(err).Dur("delay", reconnectDelay).Msg("websocket read failed, reconnecting")
				s.wg.Add(1)
				go s.reconnect(conn, reconnectDelay)
			}

			reconnectDelay *= 2
			if reconnectDelay > s.config.MaxReconnectDelay {
				reconnectDelay = s.config.MaxReconnectDelay
			}

			select {
			case <-s.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		reconnectDelay = s.config.ReconnectDelay
		s.handleMessage(message)
	}
}

// reconnect replaces the failed connection and replays every subscription.
func (s *Subscriber) reconnect(failed *websocket.Conn, delay time.Duration) {
	defer s.wg.Done()
	defer s.reconnecting.Store(false)

	select {
	case <-s.done:
		return
	case <-time.After(delay):
	}

	s.connMu.Lock()
	if s.conn == failed {
		s.conn.Close()
		s.conn = nil
	}
	s.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := s.connect(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("websocket reconnect failed")
		return
	}

	s.subsMu.RLock()
	replay := make(map[string][]string, len(s.subs))
	for id, sub := range s.subs {
		replay[id] = sub.circleIDs
	}
	s.subsMu.RUnlock()

	for id, circleIDs := range replay {
		if err := s.sendSubscribe(id, circleIDs); err != nil {
			s.logger.Warn().Err(err).Str("subscription", id).Msg("resubscribe failed")
		}
	}
}

func (s *Subscriber) handleMessage(message []byte) {
	var msg wsMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		s.logger.Warn().Err(err).Msg("undecodable websocket message")
		return
	}

	switch msg.Type {
	case msgNext:
		s.handleNext(msg)
	case msgPing:
		if err := s.write(wsMessage{Type: msgPong}); err != nil {
			s.logger.Debug().Err(err).Msg("write pong")
		}
	case msgError:
		s.logger.Error().Str("subscription", msg.ID).RawJSON("payload", msg.Payload).Msg("subscription error")
	case msgComplete:
		s.subsMu.Lock()
		if sub, ok := s.subs[msg.ID]; ok {
			close(sub.ch)
			delete(s.subs, msg.ID)
		}
		s.subsMu.Unlock()
	}
}

func (s *Subscriber) handleNext(msg wsMessage) {
	observability.RecordWSMessage()

	var payload struct {
		Data struct {
			CircleEvents []RawEvent `json:"circleEvents"`
		} `json:"data"`
	}
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		s.logger.Warn().Err(err).Str("subscription", msg.ID).Msg("undecodable subscription payload")
		return
	}

	byCircle := make(map[string][]RawEvent)
	var order []string
	for _, row := range payload.Data.CircleEvents {
		if _, ok := byCircle[row.CircleID]; !ok {
			order = append(order, row.CircleID)
		}
		byCircle[row.CircleID] = append(byCircle[row.CircleID], row)
	}

	s.subsMu.RLock()
	sub, ok := s.subs[msg.ID]
	s.subsMu.RUnlock()
	if !ok {
		return
	}

	for _, circleID := range order {
		events, warnings := DecodeAll(byCircle[circleID])
		n := Notification{CircleID: circleID, Events: events, Warnings: warnings}
		select {
		case sub.ch <- n:
		case <-s.done:
			return
		}
	}
}

func (s *Subscriber) pingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.write(wsMessage{Type: msgPing}); err != nil {
				s.logger.Debug().Err(err).Msg("write ping")
			}
		}
	}
}
