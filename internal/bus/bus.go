// Package bus connects the daemon to a websocket event hub. Controller events
// are published to every peer and "command" messages addressed to the daemon
// are answered through the control dispatcher.
package bus

import (
	"context"
	"fmt"
	log "log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"rivoo/internal/assistant"
	"rivoo/internal/control"
)

const (
	KindEvent   = "event"
	KindCommand = "command"
	KindReply   = "reply"

	Broadcast = "ALL"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Message struct {
	ID      string           `json:"id,omitempty"`
	From    string           `json:"from"`
	To      string           `json:"to"`
	Kind    string           `json:"kind"`
	Session string           `json:"session,omitempty"`
	Content string           `json:"content,omitempty"`
	Event   *assistant.Event `json:"event,omitempty"`
	Reply   *control.Reply   `json:"reply,omitempty"`
}

type Handler func(context.Context, control.Message) control.Reply

type Config struct {
	URL  string
	Name string

	// Reconn is the pause between reconnect attempts.
	Reconn  time.Duration
	Handler Handler

	// Rate and Burst bound commands per sending peer.
	Rate  rate.Limit
	Burst int
}

type Bus struct {
	url     string
	name    string
	session string
	reconn  time.Duration
	handle  Handler
	rate    rate.Limit
	burst   int
	peers   map[string]*rate.Limiter

	mu     sync.Mutex
	conn   *ws.Conn
	closed bool
}

func Dial(cfg Config) (*Bus, error) {
	if cfg.Name == "" {
		cfg.Name = "rivoo"
	}
	if cfg.Reconn <= 0 {
		cfg.Reconn = 2 * time.Second
	}
	if cfg.Rate <= 0 {
		cfg.Rate = 2
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}

	conn, _, err := ws.DefaultDialer.Dial(cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.URL, err)
	}

	b := &Bus{
		url:     cfg.URL,
		name:    cfg.Name,
		session: uuid.NewString(),
		reconn:  cfg.Reconn,
		handle:  cfg.Handler,
		rate:    cfg.Rate,
		burst:   cfg.Burst,
		peers:   make(map[string]*rate.Limiter),
		conn:    conn,
	}

	log.Info("Connected to bus", "url", cfg.URL, "session", b.session)
	return b, nil
}

// Session identifies this daemon run on the hub.
func (b *Bus) Session() string { return b.session }

// Publish broadcasts a controller event.
func (b *Bus) Publish(ev assistant.Event) error {
	return b.Write(&Message{
		To:    Broadcast,
		Kind:  KindEvent,
		Event: &ev,
	})
}

func (b *Bus) Write(m *Message) error {
	m.ID = ulid.Make().String()
	m.From = b.name
	m.Session = b.session

	data, err := json.Marshal(m)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return net.ErrClosed
	}

	log.Debug("Write bus", "msg", string(data))
	return b.conn.WriteMessage(ws.TextMessage, data)
}

// Run reads the hub until ctx is done or the bus is closed, reconnecting
// when the connection drops.
func (b *Bus) Run(ctx context.Context) {
	for {
		b.mu.Lock()
		conn, closed := b.conn, b.closed
		b.mu.Unlock()
		if closed || ctx.Err() != nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if b.isClosed() || ctx.Err() != nil {
				return
			}
			if isCloseErr(err) {
				log.Warn("Bus connection closed, reconnecting", "url", b.url)
			} else {
				log.Error("Failed to read bus", "err", err)
			}
			if !b.redial(ctx) {
				return
			}
			log.Info("Reconnected to bus", "url", b.url)
			continue
		}

		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			log.Warn("Failed to parse bus message", "msg", string(data), "err", err)
			continue
		}
		if m.To != b.name && m.To != Broadcast {
			continue
		}
		if m.Kind != KindCommand || b.handle == nil {
			continue
		}

		// Commands may block on the model, so they run off the read loop.
		go b.answer(ctx, m, b.limiter(m.From).Allow())
	}
}

func (b *Bus) answer(ctx context.Context, m Message, allowed bool) {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(m.Content), " ")

	var reply control.Reply
	if allowed {
		reply = b.handle(ctx, control.Message{Cmd: cmd, Arg: strings.TrimSpace(arg)})
	} else {
		log.Warn("Too many bus commands", "from", m.From)
		reply = control.Reply{Error: "too many commands"}
	}

	if err := b.Write(&Message{
		To:      m.From,
		Kind:    KindReply,
		Content: cmd,
		Reply:   &reply,
	}); err != nil {
		log.Error("Failed to answer bus command", "cmd", cmd, "err", err)
	}
}

// limiter is only used from the Run goroutine.
func (b *Bus) limiter(peer string) *rate.Limiter {
	l, ok := b.peers[peer]
	if !ok {
		l = rate.NewLimiter(b.rate, b.burst)
		b.peers[peer] = l
	}
	return l
}

func (b *Bus) redial(ctx context.Context) bool {
	for {
		conn, _, err := ws.DefaultDialer.DialContext(ctx, b.url, nil)
		if err == nil {
			b.mu.Lock()
			if b.closed {
				b.mu.Unlock()
				conn.Close()
				return false
			}
			b.conn = conn
			b.mu.Unlock()
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(b.reconn):
		}
		if b.isClosed() {
			return false
		}
	}
}

func (b *Bus) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	_ = b.conn.WriteControl(ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return b.conn.Close()
}

func isCloseErr(err error) bool {
	return ws.IsCloseError(err,
		ws.CloseNormalClosure,
		ws.CloseGoingAway,
		ws.CloseAbnormalClosure)
}
