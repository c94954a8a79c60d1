// Package anacrolix adapts github.com/anacrolix/torrent to ports.TorrentClient:
// add a magnet, block until every file in the torrent is on disk, then drop it.
package anacrolix

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/anacrolix/torrent"

	"pixav/internal/domain/ports"
)

var ErrHandleNotFound = errors.New("torrent handle not found")

type Config struct {
	DataDir      string
	AddTimeout   time.Duration
	PollInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.AddTimeout <= 0 {
		c.AddTimeout = 10 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
}

// Client drives one anacrolix torrent.Client across many concurrent
// downloads, tracking each by its infohash handle string.
type Client struct {
	client *torrent.Client
	cfg    Config

	mu    sync.Mutex
	torrs map[string]*torrent.Torrent
}

var _ ports.TorrentClient = (*Client)(nil)

func New(cfg Config) (*Client, error) {
	cfg.applyDefaults()
	clientCfg := torrent.NewDefaultClientConfig()
	if cfg.DataDir != "" {
		clientCfg.DataDir = cfg.DataDir
	}
	tc, err := torrent.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("start anacrolix torrent client: %w", err)
	}
	return &Client{client: tc, cfg: cfg, torrs: make(map[string]*torrent.Torrent)}, nil
}

func (c *Client) Close() error {
	errs := c.client.Close()
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// AddMagnet registers the magnet and returns its infohash as the handle.
// It does not wait for metadata or data — WaitComplete does that.
func (c *Client) AddMagnet(ctx context.Context, magnetURI string) (string, error) {
	type result struct {
		t   *torrent.Torrent
		err error
	}
	ch := make(chan result, 1)
	go func() {
		t, err := c.client.AddMagnet(magnetURI)
		ch <- result{t, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return "", fmt.Errorf("add magnet: %w", res.err)
		}
		handle := res.t.InfoHash().HexString()
		c.mu.Lock()
		c.torrs[handle] = res.t
		c.mu.Unlock()
		return handle, nil
	case <-time.After(c.cfg.AddTimeout):
		go func() {
			if res := <-ch; res.t != nil {
				res.t.Drop()
			}
		}()
		return "", errors.New("torrent client busy adding magnet, try again later")
	case <-ctx.Done():
		go func() {
			if res := <-ch; res.t != nil {
				res.t.Drop()
			}
		}()
		return "", ctx.Err()
	}
}

// WaitComplete blocks until the torrent's metadata and every file's bytes
// are fully on disk, then returns DataDir joined with the torrent's name:
// the downloaded file itself for a single-file torrent, or the top-level
// directory for a multi-file one. It polls rather than relying on a completion callback, matching
// the engine's own GotInfo()-then-poll pattern for session readiness.
func (c *Client) WaitComplete(ctx context.Context, handle string, timeout time.Duration) (string, error) {
	t := c.getTorrent(handle)
	if t == nil {
		return "", ErrHandleNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case <-t.GotInfo():
	case <-ctx.Done():
		return "", fmt.Errorf("waiting for torrent metadata: %w", ctx.Err())
	}

	t.DownloadAll()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if t.BytesCompleted() >= t.Length() {
			return filepath.Join(c.cfg.DataDir, t.Info().Name), nil
		}
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("waiting for torrent data: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) DeleteTorrent(ctx context.Context, handle string, deleteFiles bool) error {
	t := c.getTorrent(handle)
	if t == nil {
		return nil
	}
	var root string
	if deleteFiles && t.Info() != nil {
		root = filepath.Join(c.cfg.DataDir, t.Info().Name)
	}
	t.Drop()
	c.mu.Lock()
	delete(c.torrs, handle)
	c.mu.Unlock()
	if root != "" {
		if err := os.RemoveAll(root); err != nil {
			return fmt.Errorf("delete torrent data %q: %w", root, err)
		}
	}
	return nil
}

func (c *Client) getTorrent(handle string) *torrent.Torrent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.torrs[handle]
}
