// Package ws carries the streaming protocol over websocket: a client whose
// reader only hands messages on and whose writer paces chunk requests, and a
// fixture server that answers requests from a world source.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"voxstream/internal/protocol"
	"voxstream/internal/world"
)

var (
	ErrClosed    = errors.New("ws: connection closed")
	ErrQueueFull = errors.New("ws: send queue full")
)

// Handler receives every decoded inbound message on the reader goroutine.
// It must not block for long and must not touch frame-owned state.
type Handler interface {
	HandleMessage(typ string, raw []byte)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(typ string, raw []byte)

func (f HandlerFunc) HandleMessage(typ string, raw []byte) { f(typ, raw) }

type ClientConfig struct {
	URL               string
	Name              string
	SendQueue         int
	RequestsPerSecond float64
	Burst             int
	HandshakeTimeout  time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.SendQueue <= 0 {
		c.SendQueue = 1024
	}
	if c.Burst <= 0 {
		c.Burst = 64
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 60 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	return c
}

// Client is one connection to a world server.
type Client struct {
	cfg     ClientConfig
	conn    *websocket.Conn
	handler Handler
	log     *zap.Logger
	limiter *rate.Limiter
	out     chan []byte

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

// Dial connects, sends HELLO and starts the reader and writer goroutines.
func Dial(ctx context.Context, cfg ClientConfig, h Handler, log *zap.Logger) (*Client, error) {
	cfg = cfg.withDefaults()
	dialer := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.URL, err)
	}
	_ = conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
	if err := conn.WriteJSON(protocol.NewHello(cfg.Name)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send HELLO: %w", err)
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	cctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:     cfg,
		conn:    conn,
		handler: h,
		log:     log.With(zap.String("url", cfg.URL)),
		limiter: rate.NewLimiter(limit, cfg.Burst),
		out:     make(chan []byte, cfg.SendQueue),
		ctx:     cctx,
		cancel:  cancel,
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	})
	c.wg.Add(2)
	go c.reader()
	go c.writer()
	return c, nil
}

// SendRequest queues a REQUEST_CHUNK without blocking.
func (c *Client) SendRequest(kind world.Kind, key world.CellKey, tier world.Tier) error {
	b, err := json.Marshal(protocol.NewRequestChunk(kind, key, tier))
	if err != nil {
		return err
	}
	return c.enqueue(b)
}

func (c *Client) enqueue(b []byte) error {
	select {
	case <-c.ctx.Done():
		return ErrClosed
	default:
	}
	select {
	case c.out <- b:
		return nil
	default:
		return ErrQueueFull
	}
}

func (c *Client) reader() {
	defer c.wg.Done()
	defer c.cancel()
	for {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				c.setErr(err)
			}
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			c.log.Warn("undecodable message", zap.Error(err))
			continue
		}
		if err := protocol.CheckVersion(base); err != nil {
			c.log.Warn("dropping message", zap.String("type", base.Type), zap.Error(err))
			continue
		}
		c.handler.HandleMessage(base.Type, msg)
	}
}

func (c *Client) writer() {
	defer c.wg.Done()
	ping := time.NewTicker(c.cfg.ReadTimeout / 2)
	defer ping.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				c.fail(err)
				return
			}
		case b := <-c.out:
			if err := c.limiter.Wait(c.ctx); err != nil {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				c.fail(err)
				return
			}
		}
	}
}

func (c *Client) fail(err error) {
	c.setErr(err)
	c.cancel()
	_ = c.conn.Close()
}

func (c *Client) setErr(err error) {
	c.errMu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.errMu.Unlock()
}

// Err returns the error that ended the connection, if any.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Done is closed once the connection stops.
func (c *Client) Done() <-chan struct{} { return c.ctx.Done() }

// Close sends a close frame, stops both goroutines and waits for them.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.cancel()
		_ = c.conn.Close()
		c.wg.Wait()
	})
	return nil
}
