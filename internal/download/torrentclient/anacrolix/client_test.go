package anacrolix

import (
	"context"
	"testing"
	"time"

	"github.com/anacrolix/torrent"
)

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.applyDefaults()
	if cfg.AddTimeout != 10*time.Second {
		t.Fatalf("expected default add timeout 10s, got %s", cfg.AddTimeout)
	}
	if cfg.PollInterval != time.Second {
		t.Fatalf("expected default poll interval 1s, got %s", cfg.PollInterval)
	}
}

func newEmptyClient() *Client {
	cfg := Config{}
	cfg.applyDefaults()
	return &Client{cfg: cfg, torrs: make(map[string]*torrent.Torrent)}
}

func TestClient_DeleteTorrent_UnknownHandleIsNoop(t *testing.T) {
	c := newEmptyClient()
	if err := c.DeleteTorrent(context.Background(), "no-such-handle", true); err != nil {
		t.Fatalf("expected deleting an unknown handle to be a no-op, got %v", err)
	}
}

func TestClient_WaitComplete_UnknownHandleReturnsNotFound(t *testing.T) {
	c := newEmptyClient()
	_, err := c.WaitComplete(context.Background(), "no-such-handle", time.Second)
	if err != ErrHandleNotFound {
		t.Fatalf("expected ErrHandleNotFound, got %v", err)
	}
}
