package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
)

// The bridge is the process that actually speaks the binary protocol to the
// remote messaging service. This process talks to it over a WebSocket with
// JSON frames: requests carry {id, method, params}, responses carry
// {id, result|error}, and unsolicited push events arrive as {event}.

var errBridgeClosed = errors.New("bridge connection closed")

const defaultCallTimeout = 30 * time.Second

// BridgeDialer reconstructs protocol clients by dialing the bridge process.
type BridgeDialer struct {
	baseURL string
	logger  *slog.Logger
}

// NewBridgeDialer creates a dialer for the bridge at baseURL (ws:// or wss://).
func NewBridgeDialer(baseURL string, logger *slog.Logger) *BridgeDialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &BridgeDialer{baseURL: baseURL, logger: logger}
}

// Dial implements Dialer. It opens the WebSocket to the bridge but performs
// no protocol-level connect; callers drive that through Client.Connect.
func (d *BridgeDialer) Dial(ctx context.Context, cfg DialConfig) (Client, error) {
	conn, _, err := websocket.Dial(ctx, d.baseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial protocol bridge at %s: %w", d.baseURL, err)
	}
	// Normalized message payloads can exceed the 32KB default.
	conn.SetReadLimit(1 << 20)

	c := &bridgeClient{
		conn:    conn,
		cfg:     cfg,
		logger:  d.logger,
		pending: make(map[string]chan bridgeFrame),
	}
	go c.readLoop()
	return c, nil
}

type bridgeFrame struct {
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params any             `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *bridgeError    `json:"error,omitempty"`
	Event  *RawEvent       `json:"event,omitempty"`
}

type bridgeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type bridgeClient struct {
	conn   *websocket.Conn
	cfg    DialConfig
	logger *slog.Logger
	nextID atomic.Uint64

	mu        sync.Mutex
	pending   map[string]chan bridgeFrame
	handlers  []EventHandler
	connected bool
	closed    bool
}

// readLoop dispatches responses to pending calls and push events to
// registered handlers. Events are delivered synchronously, preserving the
// order the bridge emits them.
func (c *bridgeClient) readLoop() {
	for {
		_, data, err := c.conn.Read(context.Background())
		if err != nil {
			c.failPending(err)
			return
		}

		var frame bridgeFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Warn("discarding malformed bridge frame", "error", err)
			continue
		}

		switch {
		case frame.ID != "":
			c.mu.Lock()
			ch, ok := c.pending[frame.ID]
			delete(c.pending, frame.ID)
			c.mu.Unlock()
			if ok {
				ch <- frame
			}
		case frame.Event != nil:
			c.mu.Lock()
			handlers := make([]EventHandler, len(c.handlers))
			copy(handlers, c.handlers)
			c.mu.Unlock()
			for _, h := range handlers {
				h(*frame.Event)
			}
		}
	}
}

// failPending marks the client disconnected and unblocks every in-flight call.
func (c *bridgeClient) failPending(cause error) {
	c.mu.Lock()
	c.connected = false
	c.closed = true
	pending := c.pending
	c.pending = make(map[string]chan bridgeFrame)
	c.mu.Unlock()

	for _, ch := range pending {
		ch <- bridgeFrame{Error: &bridgeError{Code: "DISCONNECTED", Message: cause.Error()}}
	}
}

func (c *bridgeClient) call(ctx context.Context, method string, params any, out any) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errBridgeClosed
	}
	id := strconv.FormatUint(c.nextID.Add(1), 10)
	ch := make(chan bridgeFrame, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	payload, err := json.Marshal(bridgeFrame{ID: id, Method: method, Params: params})
	if err != nil {
		c.dropPending(id)
		return fmt.Errorf("encode %s request: %w", method, err)
	}
	if err := c.conn.Write(ctx, websocket.MessageText, payload); err != nil {
		c.dropPending(id)
		return fmt.Errorf("write %s request: %w", method, err)
	}

	select {
	case <-ctx.Done():
		c.dropPending(id)
		return ctx.Err()
	case frame := <-ch:
		if frame.Error != nil {
			return &RPCError{Code: frame.Error.Code, Message: frame.Error.Message}
		}
		if out != nil && len(frame.Result) > 0 {
			if err := json.Unmarshal(frame.Result, out); err != nil {
				return fmt.Errorf("decode %s response: %w", method, err)
			}
		}
		return nil
	}
}

func (c *bridgeClient) dropPending(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Connect implements Client.
func (c *bridgeClient) Connect(ctx context.Context) error {
	params := map[string]any{
		"apiId":   c.cfg.APIID,
		"apiHash": c.cfg.APIHash,
		"session": c.cfg.CredentialBlob,
	}
	if err := c.call(ctx, "connect", params, nil); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %w", ErrConnectTimeout, err)
		}
		return err
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return nil
}

// Disconnect implements Client. The bridge-side disconnect is best effort;
// the WebSocket is closed regardless.
func (c *bridgeClient) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	alreadyClosed := c.closed
	c.connected = false
	c.mu.Unlock()

	if !alreadyClosed {
		if err := c.call(ctx, "disconnect", nil, nil); err != nil {
			c.logger.Debug("bridge disconnect call failed", "error", err)
		}
	}

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.conn.Close(websocket.StatusNormalClosure, "client disconnected")
}

// Connected implements Client.
func (c *bridgeClient) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected && !c.closed
}

// Invoke implements Client.
func (c *bridgeClient) Invoke(ctx context.Context, req Request) (any, error) {
	var result json.RawMessage
	params := map[string]any{"request": req.RequestName(), "args": req}
	if err := c.call(ctx, "invoke", params, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetEntity implements Client.
func (c *bridgeClient) GetEntity(ctx context.Context, id int64) (*Entity, error) {
	var entity Entity
	if err := c.call(ctx, "getEntity", map[string]any{"id": id}, &entity); err != nil {
		return nil, err
	}
	return &entity, nil
}

// GetMessages implements Client.
func (c *bridgeClient) GetMessages(ctx context.Context, chatID int64, limit int) ([]RawMessage, error) {
	var msgs []RawMessage
	params := map[string]any{"chatId": chatID, "limit": limit}
	if err := c.call(ctx, "getMessages", params, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// SendMessage implements Client.
func (c *bridgeClient) SendMessage(ctx context.Context, chatID int64, text string) (int64, error) {
	var result struct {
		ID int64 `json:"id"`
	}
	params := map[string]any{"chatId": chatID, "message": text}
	if err := c.call(ctx, "sendMessage", params, &result); err != nil {
		return 0, err
	}
	return result.ID, nil
}

// AddEventHandler implements Client.
func (c *bridgeClient) AddEventHandler(fn EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, fn)
}

// RemoveEventHandlers implements Client.
func (c *bridgeClient) RemoveEventHandlers() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = nil
}

// ExportSession implements Client.
func (c *bridgeClient) ExportSession(ctx context.Context) (string, error) {
	var result struct {
		Session string `json:"session"`
	}
	if err := c.call(ctx, "exportSession", nil, &result); err != nil {
		return "", err
	}
	return result.Session, nil
}
