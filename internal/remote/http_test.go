package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rgoodwin/streakd/internal/domain"
)

var testIdentity = domain.Identity{ID: "user-a"}

func TestHTTPStore_PullDecodesSnapshot(t *testing.T) {
	var gotPath, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(Snapshot{
			Records: []domain.DayRecord{{Date: "2024-01-01", Reward: 10}},
		})
	}))
	defer server.Close()

	s := NewHTTPStore(server.URL, "secret")
	snap, err := s.Pull(context.Background(), testIdentity)
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}

	if gotPath != "/v1/users/user-a/snapshot" {
		t.Errorf("unexpected path %s", gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("unexpected auth header %q", gotAuth)
	}
	if len(snap.Records) != 1 || snap.Records[0].Date != "2024-01-01" {
		t.Errorf("snapshot mismatch: %+v", snap)
	}
}

func TestHTTPStore_PullNotFoundMeansEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	s := NewHTTPStore(server.URL, "")
	snap, err := s.Pull(context.Background(), testIdentity)
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	if !snap.IsEmpty() {
		t.Errorf("expected empty snapshot for 404, got %+v", snap)
	}
}

func TestHTTPStore_PushRecordUpsertsByDate(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody domain.DayRecord
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
	}))
	defer server.Close()

	s := NewHTTPStore(server.URL, "")
	rec := domain.DayRecord{Date: "2024-01-01", Reward: 10}
	if err := s.PushRecord(context.Background(), testIdentity, rec); err != nil {
		t.Fatalf("PushRecord failed: %v", err)
	}

	if gotMethod != http.MethodPut {
		t.Errorf("expected PUT, got %s", gotMethod)
	}
	if gotPath != "/v1/users/user-a/records/2024-01-01" {
		t.Errorf("unexpected path %s", gotPath)
	}
	if gotBody.Date != "2024-01-01" || gotBody.Reward != 10 {
		t.Errorf("body mismatch: %+v", gotBody)
	}
}

func TestHTTPStore_PushPaths(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
	}))
	defer server.Close()

	s := NewHTTPStore(server.URL, "")
	ctx := context.Background()
	if err := s.PushPreferences(ctx, testIdentity, domain.UserPreferences{Version: 1}); err != nil {
		t.Fatalf("PushPreferences failed: %v", err)
	}
	if err := s.PushAggregate(ctx, testIdentity, domain.AggregateState{TotalReward: 10}); err != nil {
		t.Fatalf("PushAggregate failed: %v", err)
	}

	want := []string{"/v1/users/user-a/preferences", "/v1/users/user-a/aggregate"}
	if len(paths) != 2 || paths[0] != want[0] || paths[1] != want[1] {
		t.Errorf("expected %v, got %v", want, paths)
	}
}

func TestHTTPStore_RejectionIsNotRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	s := NewHTTPStore(server.URL, "")
	err := s.PushRecord(context.Background(), testIdentity, domain.DayRecord{Date: "2024-01-01"})

	if !domain.IsRejected(err) {
		t.Fatalf("expected rejected error, got %v", err)
	}
	if domain.IsTransient(err) {
		t.Error("a rejection must not classify as transient")
	}
}

func TestHTTPStore_ServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	s := NewHTTPStore(server.URL, "")
	err := s.PushRecord(context.Background(), testIdentity, domain.DayRecord{Date: "2024-01-01"})

	if !domain.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestHTTPStore_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	s := NewHTTPStore(server.URL, "")
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := s.PushRecord(ctx, testIdentity, domain.DayRecord{Date: "2024-01-01"}); !domain.IsTransient(err) {
			t.Fatalf("call %d: expected transient error, got %v", i, err)
		}
	}

	// After three consecutive failures the breaker short-circuits; the last
	// two calls must not reach the server.
	if hits != 3 {
		t.Errorf("expected 3 server hits before the breaker opened, got %d", hits)
	}
}

func TestHTTPStore_RejectionDoesNotTripBreaker(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	s := NewHTTPStore(server.URL, "")
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := s.PushRecord(ctx, testIdentity, domain.DayRecord{Date: "2024-01-01"}); !domain.IsRejected(err) {
			t.Fatalf("call %d: expected rejected error, got %v", i, err)
		}
	}

	if hits != 5 {
		t.Errorf("rejections must pass through the breaker: expected 5 hits, got %d", hits)
	}
}

func TestSnapshot_IsEmpty(t *testing.T) {
	var nilSnap *Snapshot
	if !nilSnap.IsEmpty() {
		t.Error("nil snapshot must be empty")
	}
	if !(&Snapshot{}).IsEmpty() {
		t.Error("zero snapshot must be empty")
	}
	if !(&Snapshot{Aggregate: &domain.AggregateState{}}).IsEmpty() {
		t.Error("zero aggregate must still count as empty")
	}
	withRecords := &Snapshot{Records: []domain.DayRecord{{Date: "2024-01-01"}}}
	if withRecords.IsEmpty() {
		t.Error("snapshot with records must not be empty")
	}
	withAgg := &Snapshot{Aggregate: &domain.AggregateState{TotalReward: 10}}
	if withAgg.IsEmpty() {
		t.Error("snapshot with aggregate data must not be empty")
	}
}

func TestSnapshot_Log(t *testing.T) {
	snap := &Snapshot{Records: []domain.DayRecord{
		{Date: "2024-01-02"},
		{Date: "2024-01-01"},
	}}

	clog := snap.Log()

	dates := clog.Dates()
	if len(dates) != 2 || dates[0] != "2024-01-01" || dates[1] != "2024-01-02" {
		t.Errorf("expected sorted dates, got %v", dates)
	}
}
