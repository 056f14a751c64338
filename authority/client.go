package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"ticket-checkin/internal/status"
	"ticket-checkin/models"
)

// Client talks to the remote verification authority, the system holding
// canonical ticket and order state. Lookups and list pulls are
// side-effect-free and safe to retry; the mutating calls (check-in, order
// status) are never retried here — that decision belongs to the operator.
type Client struct {
	// baseURL is the root of the authority API.
	baseURL string

	// hc is the http client, with the configured authority timeout.
	hc *http.Client

	// breaker trips fast when the authority is down.
	breaker *Breaker
}

type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
	APIKey  string
}

func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	transport := http.DefaultTransport
	if cfg.APIKey != "" {
		transport = &apiKeyTransport{key: cfg.APIKey, next: transport}
	}
	return &Client{
		baseURL: cfg.BaseURL,
		hc: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		breaker: NewBreaker(),
	}
}

type apiKeyTransport struct {
	key  string
	next http.RoundTripper
}

func (t *apiKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("X-API-Key", t.key)
	return t.next.RoundTrip(req)
}

// Lookup reads the full verification snapshot for a ticket code. Idempotent
// and concurrency-safe; distinguishes an unknown code (ErrTicketNotFound)
// from a transport failure (ErrUnreachable).
func (c *Client) Lookup(ctx context.Context, code string) (*models.VerificationSnapshot, error) {
	var snap models.VerificationSnapshot
	path := fmt.Sprintf("/api/tickets/verify/%s", url.PathEscape(code))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &snap, map[int]error{
		http.StatusNotFound: status.ErrTicketNotFound,
	}); err != nil {
		return nil, err
	}
	return &snap, nil
}

// checkInResponse is shared by the fresh-success and already-used bodies;
// the authority stamps checked_in_at atomically and returns it either way.
type checkInResponse struct {
	TicketCode  string    `json:"ticket_code"`
	CheckedInAt time.Time `json:"checked_in_at"`
}

// CheckIn issues the single state-changing admission call. The request
// carries no payload: nothing a terminal sends can overwrite buyer
// identity. A 409 means the code was already used; the body carries the
// original timestamp and the outcome is informational, not an error.
func (c *Client) CheckIn(ctx context.Context, code string) (*models.CheckInOutcome, error) {
	path := fmt.Sprintf("/api/tickets/checkin/%s", url.PathEscape(code))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}

	var outcome *models.CheckInOutcome
	err = c.breaker.Do(func() error {
		resp, err := c.hc.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", status.ErrUnreachable, err)
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusOK:
			var body checkInResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				return fmt.Errorf("%w: decoding check-in response: %v", status.ErrUnreachable, err)
			}
			outcome = &models.CheckInOutcome{
				TicketCode:  body.TicketCode,
				CheckedInAt: body.CheckedInAt,
			}
			return nil
		case http.StatusConflict:
			var body checkInResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				return fmt.Errorf("%w: decoding already-used response: %v", status.ErrUnreachable, err)
			}
			outcome = &models.CheckInOutcome{
				TicketCode:  body.TicketCode,
				CheckedInAt: body.CheckedInAt,
				AlreadyUsed: true,
			}
			return nil
		case http.StatusNotFound:
			return status.ErrTicketNotFound
		case http.StatusUnprocessableEntity:
			return status.ErrNotAdmissible
		default:
			return unreachableStatus(resp)
		}
	})
	if err != nil {
		return nil, mapBreakerErr(err)
	}
	return outcome, nil
}

type orderStatusRequest struct {
	Status string `json:"status"`
}

type orderConflictResponse struct {
	CurrentStatus string `json:"current_status"`
}

// UpdateOrderStatus asks the authority to move an order to approved or
// rejected. A validation conflict names the order's current status:
// requesting the status it already has maps to ErrAlreadyInState, any other
// disallowed edge to ErrInvalidTransition.
func (c *Client) UpdateOrderStatus(ctx context.Context, orderID, desired string) (*models.TicketOrder, error) {
	path := fmt.Sprintf("/api/orders/%s/status", url.PathEscape(orderID))

	payload, err := json.Marshal(orderStatusRequest{Status: desired})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var order models.TicketOrder
	err = c.breaker.Do(func() error {
		resp, err := c.hc.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", status.ErrUnreachable, err)
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusOK:
			return json.NewDecoder(resp.Body).Decode(&order)
		case http.StatusNotFound:
			return status.ErrOrderNotFound
		case http.StatusConflict:
			var body orderConflictResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				return fmt.Errorf("%w: decoding conflict response: %v", status.ErrUnreachable, err)
			}
			if body.CurrentStatus == desired {
				return fmt.Errorf("%w: order is already %s", status.ErrAlreadyInState, body.CurrentStatus)
			}
			return fmt.Errorf("%w: order is %s, cannot become %s", status.ErrInvalidTransition, body.CurrentStatus, desired)
		default:
			return unreachableStatus(resp)
		}
	})
	if err != nil {
		return nil, mapBreakerErr(err)
	}
	return &order, nil
}

// ListOrders pulls one page of an event's orders.
func (c *Client) ListOrders(ctx context.Context, eventID string, page, perPage int) (*models.OrderPage, error) {
	var result models.OrderPage
	path := fmt.Sprintf("/api/events/%s/orders?page=%d&per_page=%d", url.PathEscape(eventID), page, perPage)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &result, nil); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListTicketClasses pulls one page of an event's ticket classes.
func (c *Client) ListTicketClasses(ctx context.Context, eventID string, page, perPage int) (*models.ClassPage, error) {
	var result models.ClassPage
	path := fmt.Sprintf("/api/events/%s/ticket-classes?page=%d&per_page=%d", url.PathEscape(eventID), page, perPage)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &result, nil); err != nil {
		return nil, err
	}
	return &result, nil
}

// Ping reports whether the authority answers at all; used by health checks.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", status.ErrUnreachable, err)
	}
	resp.Body.Close()
	return nil
}

// doJSON runs a request under the breaker and decodes the 200 body into
// out. statusErrs maps specific response codes to typed errors; everything
// else non-2xx is unreachable.
func (c *Client) doJSON(ctx context.Context, method, path string, body io.Reader, out any, statusErrs map[int]error) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}

	err = c.breaker.Do(func() error {
		resp, err := c.hc.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", status.ErrUnreachable, err)
		}
		defer resp.Body.Close()

		if typed, ok := statusErrs[resp.StatusCode]; ok {
			return typed
		}
		if resp.StatusCode != http.StatusOK {
			return unreachableStatus(resp)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decoding response: %v", status.ErrUnreachable, err)
		}
		return nil
	})
	return mapBreakerErr(err)
}

func unreachableStatus(resp *http.Response) error {
	return fmt.Errorf("%w: authority returned %d", status.ErrUnreachable, resp.StatusCode)
}

// mapBreakerErr folds an open breaker into the unreachable taxonomy so
// callers see a single retryable error kind.
func mapBreakerErr(err error) error {
	if err == ErrBreakerOpen {
		return fmt.Errorf("%w: %v", status.ErrUnreachable, err)
	}
	return err
}
