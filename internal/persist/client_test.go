package persist

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/AlverezYari/poseframe/internal/domain"
)

func testUser() domain.PersistedUser {
	return domain.PersistedUser{
		Identity: domain.Identity{FirstName: "Ada", LastName: "Lovelace"},
		Encodings: [domain.SlotCount]domain.Encoding{
			{0.1, 0.2},
			{1.1, 1.2},
			{2.1, 2.2},
		},
	}
}

func TestPersistSendsSlotsInOrder(t *testing.T) {
	var got saveRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Write([]byte(`{"message": "User created successfully: 42", "user_id": 42}`))
	}))
	defer server.Close()

	result, err := New(server.URL, time.Second, nil).Persist(context.Background(), "sess-1", testUser())
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if result.UserID != "42" {
		t.Fatalf("user id = %q, want 42", result.UserID)
	}
	if got.Name != "Ada" || got.Surname != "Lovelace" {
		t.Fatalf("identity = %q %q", got.Name, got.Surname)
	}
	if len(got.FaceEncoding) != 3 {
		t.Fatalf("got %d encodings, want 3", len(got.FaceEncoding))
	}
	for i, first := range []float64{0.1, 1.1, 2.1} {
		if got.FaceEncoding[i][0] != first {
			t.Fatalf("slot %d = %v, want leading %v", i, got.FaceEncoding[i], first)
		}
	}
}

func TestPersistStringUserID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"user_id": "u-7", "message": "ok"}`))
	}))
	defer server.Close()

	result, err := New(server.URL, time.Second, nil).Persist(context.Background(), "", testUser())
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if result.UserID != "u-7" {
		t.Fatalf("user id = %q, want u-7", result.UserID)
	}
}

func TestPersistFailureCarriesReason(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "Missing key in data: 'surname'"}`))
	}))
	defer server.Close()

	_, err := New(server.URL, time.Second, nil).Persist(context.Background(), "", testUser())
	if !errors.Is(err, domain.ErrPersistenceFailed) {
		t.Fatalf("err = %v, want ErrPersistenceFailed", err)
	}
	var pe *domain.PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("err is %T, want *domain.PersistenceError", err)
	}
	if pe.Status != http.StatusBadRequest || pe.Reason != "Missing key in data: 'surname'" {
		t.Fatalf("persistence error = %+v", pe)
	}
}

func TestPersistRejectsMissingSlot(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	user := testUser()
	user.Encodings[1] = nil
	_, err := New(server.URL, time.Second, nil).Persist(context.Background(), "", user)
	if !errors.Is(err, domain.ErrPersistenceFailed) {
		t.Fatalf("err = %v, want ErrPersistenceFailed", err)
	}
	if calls != 0 {
		t.Fatalf("server called %d times for an incomplete user", calls)
	}
}
