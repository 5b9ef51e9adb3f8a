package proxy

import (
	"net/http"
	"testing"
	"time"
)

func TestDirectClient(t *testing.T) {
	c, err := NewHTTPClient("", 5*time.Second)
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}
	if c.Transport != nil || c.Timeout != 5*time.Second {
		t.Fatalf("unexpected client: %+v", c)
	}
}

func TestSocksClient(t *testing.T) {
	c, err := NewHTTPClient("127.0.0.1:1080", 0)
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}
	if _, ok := c.Transport.(*http.Transport); !ok {
		t.Fatalf("expected a custom transport, got %T", c.Transport)
	}
}
