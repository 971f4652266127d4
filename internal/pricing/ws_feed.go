package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tradesim/internal/domain"
)

// WSFeedConfig configures WebSocket feed behavior.
type WSFeedConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// HistorySize is how many ticks to retain per symbol.
	HistorySize int

	Logger *zap.Logger
}

// DefaultWSFeedConfig returns default feed configuration.
func DefaultWSFeedConfig() WSFeedConfig {
	return WSFeedConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		HistorySize:       60,
	}
}

// tickRequest is the subscribe message for a tick stream.
type tickRequest struct {
	Ticks     string `json:"ticks"`
	Subscribe int    `json:"subscribe"`
}

// tickMessage is an incoming feed message. Only tick payloads are consumed.
type tickMessage struct {
	MsgType string `json:"msg_type"`
	Tick    *struct {
		Symbol string  `json:"symbol"`
		Epoch  int64   `json:"epoch"`
		Quote  float64 `json:"quote"`
	} `json:"tick"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// WSFeed is a brokerage tick feed over WebSocket. It maintains a rolling
// tick history per subscribed symbol and reconnects with capped backoff,
// resubscribing to all active symbols. LatestTicks reads from the local
// history only, so a dropped connection never fails a caller; they simply
// see the last known ticks.
type WSFeed struct {
	endpoint string
	config   WSFeedConfig
	logger   *zap.Logger

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	// history holds the recent tick window per symbol.
	history   map[string][]domain.PriceTick
	historyMu sync.RWMutex

	// subscribed tracks symbols for resubscription after reconnect.
	subscribed   map[string]struct{}
	subscribedMu sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup
}

// NewWSFeed connects to the feed endpoint and starts the read and ping loops.
func NewWSFeed(ctx context.Context, endpoint string, config *WSFeedConfig) (*WSFeed, error) {
	cfg := DefaultWSFeedConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	f := &WSFeed{
		endpoint:   endpoint,
		config:     cfg,
		logger:     cfg.Logger,
		history:    make(map[string][]domain.PriceTick),
		subscribed: make(map[string]struct{}),
		done:       make(chan struct{}),
	}

	if err := f.connect(ctx); err != nil {
		return nil, err
	}

	f.wg.Add(1)
	go f.readLoop()

	f.wg.Add(1)
	go f.pingLoop()

	return f, nil
}

// connect dials the WebSocket endpoint.
func (f *WSFeed) connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial feed %s: %w", f.endpoint, err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()
	return nil
}

// Subscribe starts the tick stream for a symbol. Idempotent per symbol.
func (f *WSFeed) Subscribe(symbol string) error {
	f.subscribedMu.Lock()
	_, already := f.subscribed[symbol]
	f.subscribed[symbol] = struct{}{}
	f.subscribedMu.Unlock()
	if already {
		return nil
	}
	return f.writeJSON(tickRequest{Ticks: symbol, Subscribe: 1})
}

// LatestTicks returns the buffered tick window for a symbol, oldest first.
func (f *WSFeed) LatestTicks(_ context.Context, symbol string) ([]domain.PriceTick, error) {
	f.historyMu.RLock()
	defer f.historyMu.RUnlock()

	window := f.history[symbol]
	out := make([]domain.PriceTick, len(window))
	copy(out, window)
	return out, nil
}

// Close shuts down the feed and waits for background loops to exit.
func (f *WSFeed) Close() error {
	if !f.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(f.done)

	f.connMu.Lock()
	if f.conn != nil {
		f.conn.Close()
	}
	f.connMu.Unlock()

	f.wg.Wait()
	return nil
}

func (f *WSFeed) writeJSON(v interface{}) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()

	if f.conn == nil {
		return fmt.Errorf("feed not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(f.config.WriteTimeout))
	return f.conn.WriteJSON(v)
}

// readLoop consumes feed messages until Close, reconnecting on errors.
func (f *WSFeed) readLoop() {
	defer f.wg.Done()

	for {
		select {
		case <-f.done:
			return
		default:
		}

		f.connMu.Lock()
		conn := f.conn
		f.connMu.Unlock()
		if conn == nil {
			f.reconnect()
			continue
		}

		conn.SetReadDeadline(time.Now().Add(f.config.ReadTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if f.closed.Load() {
				return
			}
			f.logger.Warn("feed read failed, reconnecting", zap.Error(err))
			f.reconnect()
			continue
		}

		f.handleMessage(data)
	}
}

// handleMessage parses a feed message and records tick payloads.
func (f *WSFeed) handleMessage(data []byte) {
	var msg tickMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		f.logger.Debug("unparseable feed message", zap.Error(err))
		return
	}
	if msg.Error != nil {
		f.logger.Warn("feed error message",
			zap.String("code", msg.Error.Code),
			zap.String("message", msg.Error.Message))
		return
	}
	if msg.Tick == nil {
		return
	}

	tick := domain.PriceTick{
		Epoch:       msg.Tick.Epoch,
		Price:       msg.Tick.Quote,
		DisplayTime: time.Unix(msg.Tick.Epoch, 0).UTC().Format("15:04:05"),
	}

	f.historyMu.Lock()
	window := append(f.history[msg.Tick.Symbol], tick)
	if len(window) > f.config.HistorySize {
		window = window[len(window)-f.config.HistorySize:]
	}
	f.history[msg.Tick.Symbol] = window
	f.historyMu.Unlock()
}

// reconnect re-establishes the connection with capped exponential backoff
// and resubscribes all active symbols.
func (f *WSFeed) reconnect() {
	delay := f.config.ReconnectDelay

	for {
		select {
		case <-f.done:
			return
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), f.config.WriteTimeout)
		err := f.connect(ctx)
		cancel()
		if err != nil {
			f.logger.Warn("feed reconnect failed", zap.Error(err), zap.Duration("next_delay", delay))
			delay *= 2
			if delay > f.config.MaxReconnectDelay {
				delay = f.config.MaxReconnectDelay
			}
			continue
		}

		f.resubscribe()
		f.logger.Info("feed reconnected")
		return
	}
}

// resubscribe replays subscriptions after a reconnect.
func (f *WSFeed) resubscribe() {
	f.subscribedMu.Lock()
	symbols := make([]string, 0, len(f.subscribed))
	for s := range f.subscribed {
		symbols = append(symbols, s)
	}
	f.subscribedMu.Unlock()

	for _, s := range symbols {
		if err := f.writeJSON(tickRequest{Ticks: s, Subscribe: 1}); err != nil {
			f.logger.Warn("resubscribe failed", zap.String("symbol", s), zap.Error(err))
		}
	}
}

// pingLoop keeps the connection alive.
func (f *WSFeed) pingLoop() {
	defer f.wg.Done()

	ticker := time.NewTicker(f.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.done:
			return
		case <-ticker.C:
			f.connMu.Lock()
			conn := f.conn
			if conn != nil {
				conn.SetWriteDeadline(time.Now().Add(f.config.WriteTimeout))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					f.logger.Debug("ping failed", zap.Error(err))
				}
			}
			f.connMu.Unlock()
		}
	}
}

var _ Source = (*WSFeed)(nil)
