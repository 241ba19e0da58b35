package directory

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/tasteshift/live/internal/adapters/rtc"
	"github.com/tasteshift/live/internal/core"
	"github.com/tasteshift/live/internal/domain"
)

const (
	sendBuffer   = 32
	writeTimeout = 5 * time.Second
	openTimeout  = 10 * time.Second

	DefaultPingInterval = 5 * time.Second
)

type Config struct {
	// URL of the directory socket, e.g. ws://localhost:8080/api/ws/directory.
	URL          string
	ICEServers   []string
	PingInterval time.Duration
	Dialer       *websocket.Dialer
}

// Provider hands out directory clients once the media API is loaded.
type Provider struct {
	loader *rtc.Loader
	cfg    Config
}

var _ core.DirectoryProvider = (*Provider)(nil)

func NewProvider(loader *rtc.Loader, cfg Config) *Provider {
	if cfg.PingInterval == 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return &Provider{loader: loader, cfg: cfg}
}

func (p *Provider) Directory(ctx context.Context) (core.Directory, error) {
	api, err := p.loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	return &Client{api: api, rtcCfg: rtc.WebRTCConfig(p.cfg.ICEServers), cfg: p.cfg}, nil
}

// Client registers identities with the directory server.
type Client struct {
	api    *webrtc.API
	rtcCfg webrtc.Configuration
	cfg    Config
}

var _ core.Directory = (*Client)(nil)

func (c *Client) Register(ctx context.Context, id domain.Identity) (core.Peer, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("directory url: %w", err)
	}
	q := u.Query()
	q.Set("id", id.String())
	u.RawQuery = q.Encode()

	ws, _, err := c.cfg.Dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, errors.Join(domain.ErrDirectoryClosed, err)
	}

	if err := awaitOpen(ctx, ws, id); err != nil {
		_ = ws.Close()
		return nil, err
	}

	p := newPeer(id, ws, c.api, c.rtcCfg, c.cfg.PingInterval)
	p.start()
	log.Info().Str("module", "directory").Str("identity", id.String()).Msg("registered")
	return p, nil
}

// awaitOpen reads the first envelope, which either confirms the identity or
// refuses it.
func awaitOpen(ctx context.Context, ws *websocket.Conn, id domain.Identity) error {
	deadline := time.Now().Add(openTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = ws.SetReadDeadline(deadline)
	defer func() { _ = ws.SetReadDeadline(time.Time{}) }()

	stop := context.AfterFunc(ctx, func() { _ = ws.SetReadDeadline(time.Now()) })
	defer stop()

	var msg core.Message
	if err := ws.ReadJSON(&msg); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Join(domain.ErrDirectoryClosed, err)
	}

	switch msg.Type {
	case core.MsgOpen:
		return nil
	case core.MsgError:
		var p core.ErrorPayload
		if err := msg.Decode(&p); err != nil {
			return err
		}
		switch p.Type {
		case core.ErrTypeUnavailableID:
			return fmt.Errorf("%w: %s", domain.ErrUnavailableID, id)
		case core.ErrTypeInvalidID:
			return fmt.Errorf("%w: %s", domain.ErrInvalidIdentity, id)
		default:
			return fmt.Errorf("directory refused %s: %s", id, p.Message)
		}
	default:
		return fmt.Errorf("directory: unexpected %s before open", msg.Type)
	}
}
