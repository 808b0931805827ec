package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rgoodwin/streakd/internal/domain"
	"github.com/sony/gobreaker/v2"
)

const defaultTimeout = 10 * time.Second

// HTTPStore talks to the backend's JSON upsert API. Transport errors and 5xx
// responses feed a circuit breaker; an open breaker short-circuits calls as
// transient failures instead of hammering an unreachable backend.
type HTTPStore struct {
	baseURL string
	token   string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
}

// NewHTTPStore creates an adapter for the backend at baseURL.
func NewHTTPStore(baseURL, token string) *HTTPStore {
	settings := gobreaker.Settings{
		Name:    "remote",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
	return &HTTPStore{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: defaultTimeout},
		breaker: gobreaker.NewCircuitBreaker[*http.Response](settings),
	}
}

// Pull implements Store. A 404 means the identity has no remote data yet and
// yields an empty snapshot.
func (s *HTTPStore) Pull(ctx context.Context, identity domain.Identity) (*Snapshot, error) {
	const op = "pull snapshot"
	resp, err := s.do(ctx, op, http.MethodGet, s.userPath(identity, "snapshot"), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return &Snapshot{}, nil
	}
	if err := classifyStatus(op, resp.StatusCode); err != nil {
		io.Copy(io.Discard, resp.Body)
		return nil, err
	}

	var snap Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, &domain.TransientError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return &snap, nil
}

// PushRecord implements Store.
func (s *HTTPStore) PushRecord(ctx context.Context, identity domain.Identity, rec domain.DayRecord) error {
	return s.put(ctx, "push record "+rec.Date, s.userPath(identity, "records/"+rec.Date), rec)
}

// PushPreferences implements Store.
func (s *HTTPStore) PushPreferences(ctx context.Context, identity domain.Identity, prefs domain.UserPreferences) error {
	return s.put(ctx, "push preferences", s.userPath(identity, "preferences"), prefs)
}

// PushAggregate implements Store.
func (s *HTTPStore) PushAggregate(ctx context.Context, identity domain.Identity, agg domain.AggregateState) error {
	return s.put(ctx, "push aggregate", s.userPath(identity, "aggregate"), agg)
}

func (s *HTTPStore) userPath(identity domain.Identity, suffix string) string {
	return fmt.Sprintf("%s/v1/users/%s/%s", s.baseURL, url.PathEscape(identity.ID), suffix)
}

func (s *HTTPStore) put(ctx context.Context, op, endpoint string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: encode payload: %w", op, err)
	}
	resp, err := s.do(ctx, op, http.MethodPut, endpoint, payload)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return classifyStatus(op, resp.StatusCode)
}

// do performs one request through the breaker. Transport errors and 5xx/429
// responses count as breaker failures; any other response passes through for
// status classification by the caller.
func (s *HTTPStore) do(ctx context.Context, op, method, endpoint string, body []byte) (*http.Response, error) {
	resp, err := s.breaker.Execute(func() (*http.Response, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if s.token != "" {
			req.Header.Set("Authorization", "Bearer "+s.token)
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil, fmt.Errorf("server returned status %d", resp.StatusCode)
		}
		return resp, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &domain.TransientError{Op: op, Err: fmt.Errorf("circuit breaker open: %w", err)}
		}
		return nil, &domain.TransientError{Op: op, Err: err}
	}
	return resp, nil
}

// classifyStatus maps a non-5xx response status into the error taxonomy.
func classifyStatus(op string, status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusBadRequest,
		status == http.StatusUnauthorized,
		status == http.StatusForbidden,
		status == http.StatusConflict,
		status == http.StatusUnprocessableEntity:
		return &domain.RejectedError{Op: op, Status: status, Reason: http.StatusText(status)}
	default:
		return &domain.TransientError{Op: op, Err: fmt.Errorf("unexpected status %d", status)}
	}
}
