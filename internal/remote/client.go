package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"booksync/internal/config"
	"booksync/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Committer is the remote commit contract consumed by the sync engine.
// The action ID is sent as an idempotency key, so replaying an already
// applied action is safe on the service side.
type Committer interface {
	Commit(ctx context.Context, action *models.PendingAction) error
}

// CommitError describes a refused or failed remote commit. Terminal
// failures (the service understood the request and rejected it) must
// not be retried; everything else is transient.
type CommitError struct {
	StatusCode int
	Terminal   bool
	Message    string
}

func (e *CommitError) Error() string {
	kind := "transient"
	if e.Terminal {
		kind = "terminal"
	}
	return fmt.Sprintf("remote commit failed (%s, status %d): %s", kind, e.StatusCode, e.Message)
}

// IsTerminal reports whether the error is a terminal remote rejection.
func IsTerminal(err error) bool {
	var ce *CommitError
	return errors.As(err, &ce) && ce.Terminal
}

// Client talks to the booking service's HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	apiExtra   string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

func NewClient(cfg config.RemoteConfig, logger *zerolog.Logger) *Client {
	rps := cfg.RPS
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 10
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		apiExtra:   cfg.APIExtra,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		logger:     logger.With().Str("component", "remote").Logger(),
	}
}

type commitRequest struct {
	ActionType string            `json:"action_type"`
	Payload    map[string]string `json:"payload,omitempty"`
}

// Commit replays one pending action against the service. The client
// rate limiter keeps drains from hammering the API.
func (c *Client) Commit(ctx context.Context, action *models.PendingAction) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/v1/bookings/%s/actions", c.baseURL, url.PathEscape(action.BookingID))
	body, err := json.Marshal(commitRequest{ActionType: action.ActionType, Payload: action.Payload})
	if err != nil {
		return fmt.Errorf("encode commit request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", action.ID)
	c.addHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &CommitError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(raw))
	if msg == "" {
		msg = resp.Status
	}

	return &CommitError{
		StatusCode: resp.StatusCode,
		Terminal:   resp.StatusCode >= 400 && resp.StatusCode < 500,
		Message:    msg,
	}
}

// FetchBookings pulls the server-side view of bookings updated since
// the given time, used by the refresh merge.
func (c *Client) FetchBookings(ctx context.Context, since time.Time) ([]models.BookingRecord, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/v1/bookings", c.baseURL)
	if !since.IsZero() {
		endpoint += "?updated_since=" + url.QueryEscape(since.Format(time.RFC3339))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	c.addHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch bookings: unexpected status %d", resp.StatusCode)
	}

	var wrap struct {
		Bookings []models.BookingRecord `json:"bookings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wrap); err != nil {
		return nil, fmt.Errorf("decode bookings: %w", err)
	}
	return wrap.Bookings, nil
}

func (c *Client) addHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	if c.apiExtra != "" {
		req.Header.Set("x-api-extra", c.apiExtra)
	}
}
