// ABOUTME: websocket session.Client that reaches the game through an external bridge process.
// ABOUTME: One connection per agent; the dial carries a short-lived bearer token when a secret is set.

package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/time/rate"

	"github.com/2389/coven-fleet/internal/auth"
	"github.com/2389/coven-fleet/internal/session"
)

// Defaults applied by NewClient to zero Config fields.
const (
	DefaultRequestTimeout = 10 * time.Second
	DefaultChatRate       = 2.0
	DefaultChatBurst      = 3
	TokenTTL              = 5 * time.Minute
)

// ErrNoURL is returned when the bridge URL is not configured.
var ErrNoURL = errors.New("bridge url not configured")

// Config configures a Client.
type Config struct {
	URL            string
	Secret         string
	RequestTimeout time.Duration
	ChatRate       float64 // chat frames per second
	ChatBurst      int
}

// Client connects agents through the bridge.
type Client struct {
	cfg    Config
	signer *auth.Signer
	logger *slog.Logger
}

var _ session.Client = (*Client)(nil)

// NewClient creates a Client.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, ErrNoURL
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.ChatRate <= 0 {
		cfg.ChatRate = DefaultChatRate
	}
	if cfg.ChatBurst <= 0 {
		cfg.ChatBurst = DefaultChatBurst
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{cfg: cfg, logger: logger.With("component", "bridge")}
	if cfg.Secret != "" {
		signer, err := auth.NewSigner([]byte(cfg.Secret))
		if err != nil {
			return nil, fmt.Errorf("creating token signer: %w", err)
		}
		c.signer = signer
	}
	return c, nil
}

// Connect dials the bridge and asks it to join the game server as
// params.Username. The returned session reports EventConnected once the
// agent has spawned.
func (c *Client) Connect(ctx context.Context, params session.Params) (session.Session, error) {
	opts := &websocket.DialOptions{HTTPHeader: http.Header{}}
	if c.signer != nil {
		token, err := c.signer.Issue(params.Username, TokenTTL)
		if err != nil {
			return nil, fmt.Errorf("issuing bridge token: %w", err)
		}
		opts.HTTPHeader.Set("Authorization", auth.BearerHeader(token))
	}

	conn, resp, err := websocket.Dial(ctx, c.cfg.URL, opts)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing bridge: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("dialing bridge: %w", err)
	}

	hello := Outgoing{
		Type: frameConnect,
		Params: &ConnectParams{
			Host:     params.Host,
			Port:     params.Port,
			Username: params.Username,
			Version:  params.Version,
		},
	}
	if err := wsjson.Write(ctx, conn, hello); err != nil {
		conn.Close(websocket.StatusInternalError, "connect write failed")
		return nil, fmt.Errorf("sending connect frame: %w", err)
	}

	c.logger.Debug("bridge connected", "username", params.Username, "server", params.Addr())

	limiter := rate.NewLimiter(rate.Limit(c.cfg.ChatRate), c.cfg.ChatBurst)
	return newSession(params.Username, conn, limiter, c.cfg.RequestTimeout, c.logger), nil
}
