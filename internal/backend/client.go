// Package backend is the HTTP client for the relay's REST API: login, history
// paging, user icons and read receipts.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/clementraoulgithub/gui-tcp-server/internal/domain"
)

// Options configures a Client.
type Options struct {
	BaseURL string
	Timeout time.Duration
	// RPS limits outgoing requests per second. Zero disables the limit.
	RPS    float64
	Burst  int
	Logger zerolog.Logger
}

// Client talks to the relay. It is safe for concurrent use once logged in.
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
	log     zerolog.Logger

	mu    sync.RWMutex
	token string
}

// LoginResponse is returned by register and login.
type LoginResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	User        domain.User `json:"user"`
}

type apiError struct {
	Error string `json:"error"`
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// New creates a client for the relay at opts.BaseURL.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RPS > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RPS), burst)
	}

	c := &Client{
		limiter: limiter,
		log:     opts.Logger.With().Str("component", "backend").Logger(),
	}
	c.http = resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json").
		OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
			return c.limiter.Wait(r.Context())
		})
	return c
}

// Token returns the bearer token obtained by Login or Register.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken installs a bearer token obtained elsewhere.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Login authenticates and keeps the returned token for later calls.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	return c.authenticate(ctx, "/api/auth/login", username, password)
}

// Register creates the account and logs in.
func (c *Client) Register(ctx context.Context, username, password string) (*LoginResponse, error) {
	return c.authenticate(ctx, "/api/auth/register", username, password)
}

func (c *Client) authenticate(ctx context.Context, path, username, password string) (*LoginResponse, error) {
	var out LoginResponse
	resp, err := c.request(ctx).
		SetBody(credentials{Username: username, Password: password}).
		SetResult(&out).
		Post(path)
	if err := c.check(resp, err, path); err != nil {
		return nil, err
	}
	c.SetToken(out.AccessToken)
	return &out, nil
}

// GetOlderMessages returns up to count messages older than start exchanged
// between user1 and user2, plus the home room. start <= 0 means the newest.
func (c *Client) GetOlderMessages(ctx context.Context, start int64, count int, user1, user2 string) ([]domain.HistoryMessage, error) {
	var out struct {
		Messages []domain.HistoryMessage `json:"messages"`
	}
	resp, err := c.request(ctx).
		SetQueryParams(map[string]string{
			"start": strconv.FormatInt(start, 10),
			"count": strconv.Itoa(count),
			"user1": user1,
			"user2": user2,
		}).
		SetResult(&out).
		Get("/api/messages/older")
	if err := c.check(resp, err, "older messages"); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// GetLastMessageID returns the id of the newest stored message.
func (c *Client) GetLastMessageID(ctx context.Context) (int64, error) {
	var out struct {
		LastID int64 `json:"last_id"`
	}
	resp, err := c.request(ctx).SetResult(&out).Get("/api/messages/last-id")
	if err := c.check(resp, err, "last message id"); err != nil {
		return 0, err
	}
	return out.LastID, nil
}

// UpdateIsReadStatus flags every message from sender to receiver.
func (c *Client) UpdateIsReadStatus(ctx context.Context, sender, receiver string, isRead bool) error {
	resp, err := c.request(ctx).
		SetBody(map[string]any{"sender": sender, "receiver": receiver, "is_readed": isRead}).
		Post("/api/messages/read")
	return c.check(resp, err, "update read status")
}

// ListUsers returns every registered username.
func (c *Client) ListUsers(ctx context.Context) ([]string, error) {
	var out struct {
		Users []string `json:"users"`
	}
	resp, err := c.request(ctx).SetResult(&out).Get("/api/users")
	if err := c.check(resp, err, "list users"); err != nil {
		return nil, err
	}
	return out.Users, nil
}

// GetUserIcon returns the picture of username, empty when none is set.
func (c *Client) GetUserIcon(ctx context.Context, username string) ([]byte, error) {
	resp, err := c.request(ctx).
		SetPathParam("username", username).
		Get("/api/users/{username}/icon")
	if err := c.check(resp, err, "user icon"); err != nil {
		return nil, err
	}
	if resp.StatusCode() == http.StatusNoContent {
		return nil, nil
	}
	return resp.Body(), nil
}

// SetUserIcon uploads the picture of the logged-in user.
func (c *Client) SetUserIcon(ctx context.Context, username string, icon []byte) error {
	resp, err := c.request(ctx).
		SetPathParam("username", username).
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(icon).
		Put("/api/users/{username}/icon")
	return c.check(resp, err, "set user icon")
}

func (c *Client) request(ctx context.Context) *resty.Request {
	r := c.http.R().SetContext(ctx).SetError(&apiError{})
	if token := c.Token(); token != "" {
		r.SetAuthToken(token)
	}
	return r
}

// check maps transport failures and HTTP error statuses onto the domain
// sentinels.
func (c *Client) check(resp *resty.Response, err error, what string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if !resp.IsError() {
		return nil
	}

	msg := resp.Status()
	if e, ok := resp.Error().(*apiError); ok && e.Error != "" {
		msg = e.Error
	}
	c.log.Debug().Int("status", resp.StatusCode()).Str("call", what).Msg(msg)

	var sentinel error
	switch resp.StatusCode() {
	case http.StatusNotFound:
		sentinel = domain.ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		sentinel = domain.ErrUnauthorized
	case http.StatusConflict:
		sentinel = domain.ErrConflict
	case http.StatusBadRequest:
		sentinel = domain.ErrInvalidInput
	default:
		sentinel = errors.New(resp.Status())
	}
	return fmt.Errorf("%s: %s: %w", what, msg, sentinel)
}
