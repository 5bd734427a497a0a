package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/iliyamo/event-booking/internal/model"
)

// Client talks to a remote inventory service over its internal HTTP API.
// It offers the same operations and error values as Inventory so the
// booking coordinator cannot tell a local engine from a remote one.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a Client for the service at baseURL
// (e.g. "http://inventory:8081").  timeout bounds every request.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type availabilityResponse struct {
	Available bool `json:"available"`
	FreeCount int  `json:"free_count"`
}

type reserveRequest struct {
	BookingID string `json:"booking_id"`
	Count     int    `json:"count"`
}

type reserveResponse struct {
	SeatNumbers []int `json:"seat_numbers"`
}

type releaseResponse struct {
	ReleasedCount int `json:"released_count"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Requested int    `json:"requested"`
	FreeCount int    `json:"free_count"`
}

// CheckAvailability calls GET /internal/v1/events/:id/availability.
func (c *Client) CheckAvailability(ctx context.Context, eventID int64, count int) (model.Availability, error) {
	path := fmt.Sprintf("/internal/v1/events/%d/availability?count=%d", eventID, count)
	var out availabilityResponse
	if err := c.do(ctx, http.MethodGet, path, nil, eventID, &out); err != nil {
		return model.Availability{}, err
	}
	return model.Availability{Available: out.Available, FreeCount: out.FreeCount}, nil
}

// Reserve calls POST /internal/v1/events/:id/reservations.
func (c *Client) Reserve(ctx context.Context, eventID int64, count int, bookingID string) ([]int, error) {
	path := fmt.Sprintf("/internal/v1/events/%d/reservations", eventID)
	var out reserveResponse
	if err := c.do(ctx, http.MethodPost, path, reserveRequest{BookingID: bookingID, Count: count}, eventID, &out); err != nil {
		return nil, err
	}
	return out.SeatNumbers, nil
}

// Release calls DELETE /internal/v1/events/:id/reservations/:booking_id.
func (c *Client) Release(ctx context.Context, eventID int64, bookingID string) (int, error) {
	path := fmt.Sprintf("/internal/v1/events/%d/reservations/%s", eventID, url.PathEscape(bookingID))
	var out releaseResponse
	if err := c.do(ctx, http.MethodDelete, path, nil, eventID, &out); err != nil {
		return 0, err
	}
	return out.ReleasedCount, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, eventID int64, out any) error {
	op := method + " " + path
	var rd io.Reader
	if body != nil {
		bs, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(bs)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return model.Upstream(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return model.Upstream(op, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.Unmarshal(raw, out); err != nil {
			return model.Upstream(op, fmt.Errorf("decode response: %w", err))
		}
		return nil
	}
	return decodeError(op, resp.StatusCode, raw, eventID)
}

func decodeError(op string, status int, raw []byte, eventID int64) error {
	var er errorResponse
	_ = json.Unmarshal(raw, &er)
	msg := er.Message
	if msg == "" {
		msg = strconv.Itoa(status) + " " + http.StatusText(status)
	}
	switch er.Error {
	case model.KindEventNotFound:
		return model.ErrEventNotFound
	case model.KindInsufficientInventory:
		return &model.InsufficientInventoryError{EventID: eventID, Requested: er.Requested, Free: er.FreeCount}
	case model.KindReservationConflict:
		return fmt.Errorf("%w: %s", model.ErrReservationConflict, msg)
	case model.KindInvalidInput:
		return fmt.Errorf("%w: %s", model.ErrInvalidInput, msg)
	}
	return model.Upstream(op, fmt.Errorf("inventory responded %d: %s", status, msg))
}
