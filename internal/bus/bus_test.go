package bus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"rivoo/internal/assistant"
	"rivoo/internal/control"
)

// hub accepts one peer and hands its connection to the test.
func hub(t *testing.T) (string, <-chan *ws.Conn) {
	t.Helper()

	conns := make(chan *ws.Conn, 1)
	up := ws.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		conns <- c
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http"), conns
}

func peer(t *testing.T, conns <-chan *ws.Conn) *ws.Conn {
	t.Helper()
	select {
	case c := <-conns:
		t.Cleanup(func() { c.Close() })
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no connection")
		return nil
	}
}

func TestPublish(t *testing.T) {
	url, conns := hub(t)

	b, err := Dial(Config{URL: url})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer b.Close()
	c := peer(t, conns)

	if err := b.Publish(assistant.Event{Kind: assistant.EventStatus, Status: assistant.StatusSpeaking}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.Contains(string(raw), `"message"`) {
		t.Fatalf("status event carries an empty message: %s", raw)
	}
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if m.Kind != KindEvent || m.To != Broadcast || m.From != "rivoo" {
		t.Fatalf("envelope = %+v", m)
	}
	if m.ID == "" {
		t.Fatal("message without id")
	}
	if m.Session == "" || m.Session != b.Session() {
		t.Fatalf("session = %q, want %q", m.Session, b.Session())
	}
	if m.Event == nil || m.Event.Status != assistant.StatusSpeaking {
		t.Fatalf("event = %+v", m.Event)
	}
}

func TestCommand(t *testing.T) {
	url, conns := hub(t)

	got := make(chan control.Message, 1)
	b, err := Dial(Config{
		URL:  url,
		Name: "rivoo",
		Handler: func(_ context.Context, msg control.Message) control.Reply {
			got <- msg
			return control.Reply{OK: true}
		},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer b.Close()
	c := peer(t, conns)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	// Addressed elsewhere, ignored.
	if err := c.WriteJSON(Message{From: "ui", To: "lamp", Kind: KindCommand, Content: "hush"}); err != nil {
		t.Fatal(err)
	}
	if err := c.WriteJSON(Message{From: "ui", To: "rivoo", Kind: KindCommand, Content: "say  should I move? "}); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-got:
		if msg.Cmd != "say" || msg.Arg != "should I move?" {
			t.Fatalf("command = %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("command not handled")
	}

	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	var m Message
	if err := c.ReadJSON(&m); err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if m.Kind != KindReply || m.To != "ui" || m.Reply == nil || !m.Reply.OK {
		t.Fatalf("reply = %+v", m)
	}
}

func TestSlowCommandDoesNotBlockReads(t *testing.T) {
	url, conns := hub(t)

	release := make(chan struct{})
	hushed := make(chan struct{})
	b, err := Dial(Config{
		URL: url,
		Handler: func(_ context.Context, msg control.Message) control.Reply {
			switch msg.Cmd {
			case "say":
				<-release
			case "hush":
				close(hushed)
			}
			return control.Reply{OK: true}
		},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer b.Close()
	c := peer(t, conns)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)
	defer close(release)

	for _, content := range []string{"say should I move?", "hush"} {
		if err := c.WriteJSON(Message{From: "ui", To: "rivoo", Kind: KindCommand, Content: content}); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case <-hushed:
	case <-time.After(2 * time.Second):
		t.Fatal("hush waited behind a pending say")
	}
}

func TestCommandRateLimit(t *testing.T) {
	url, conns := hub(t)

	var handled atomic.Int32
	b, err := Dial(Config{
		URL:   url,
		Rate:  rate.Every(time.Hour),
		Burst: 1,
		Handler: func(context.Context, control.Message) control.Reply {
			handled.Add(1)
			return control.Reply{OK: true}
		},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer b.Close()
	c := peer(t, conns)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	var replies []Message
	for range 2 {
		if err := c.WriteJSON(Message{From: "ui", To: Broadcast, Kind: KindCommand, Content: "status"}); err != nil {
			t.Fatal(err)
		}
		c.SetReadDeadline(time.Now().Add(2 * time.Second))
		var m Message
		if err := c.ReadJSON(&m); err != nil {
			t.Fatalf("read reply: %v", err)
		}
		replies = append(replies, m)
	}

	if !replies[0].Reply.OK {
		t.Fatalf("first reply = %+v", replies[0].Reply)
	}
	if replies[1].Reply.OK || replies[1].Reply.Error != "too many commands" {
		t.Fatalf("second reply = %+v", replies[1].Reply)
	}
	if n := handled.Load(); n != 1 {
		t.Fatalf("handled %d commands, want 1", n)
	}
}

func TestWriteAfterClose(t *testing.T) {
	url, conns := hub(t)

	b, err := Dial(Config{URL: url})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	peer(t, conns)

	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := b.Publish(assistant.Event{Kind: assistant.EventError, Error: "x"}); err == nil {
		t.Fatal("publish after close succeeded")
	}
}
