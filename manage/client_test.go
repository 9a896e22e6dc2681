package manage

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/pay2run/pay2run"
)

var testInput = pay2run.ActionInput{
	Name:      "weather",
	TargetURL: "https://upstream.example.com/weather",
	Method:    "POST",
	Headers:   map[string]string{"X-Api-Key": "{{secrets.apiKey}}"},
	Secrets:   map[string]string{"apiKey": "upstream-secret"},
	Price:     "0.05",
	Currency:  "USDC",
	Payment: pay2run.CreatorPaymentConfig{
		EVM: &pay2run.EVMPaymentConfig{
			ChainID:   "8453",
			Recipient: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		},
	},
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := New("sk_test_123", WithBaseURL(baseURL))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return client
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(""); !errors.Is(err, pay2run.ErrMissingAPIKey) {
		t.Errorf("New(\"\") error = %v; want ErrMissingAPIKey", err)
	}
}

func TestCreate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s; want POST", r.Method)
		}
		if r.URL.Path != "/v1/actions" {
			t.Errorf("path = %s; want /v1/actions", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk_test_123" {
			t.Errorf("Authorization = %q; want %q", got, "Bearer sk_test_123")
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q; want application/json", got)
		}

		// The creation payload carries the private fields.
		var input pay2run.ActionInput
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if input.Secrets["apiKey"] != "upstream-secret" {
			t.Errorf("secrets not sent: %+v", input.Secrets)
		}
		if input.TargetURL != testInput.TargetURL {
			t.Errorf("targetUrl = %q; want %q", input.TargetURL, testInput.TargetURL)
		}

		// The platform answers with the public projection only.
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(pay2run.ActionConfig{
			ID:   "act_42",
			Name: input.Name,
			Payment: pay2run.PaymentDescriptor{
				Network:  pay2run.NetworkEVM,
				Chain:    "8453",
				Price:    input.Price,
				Currency: input.Currency,
			},
		})
	}))
	defer server.Close()

	created, err := newTestClient(t, server.URL).Create(context.Background(), testInput)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.ID != "act_42" {
		t.Errorf("ID = %q; want %q", created.ID, "act_42")
	}
	if created.Payment.Network != pay2run.NetworkEVM {
		t.Errorf("Payment.Network = %q; want %q", created.Payment.Network, pay2run.NetworkEVM)
	}
}

func TestCreateUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"invalid api key"}`))
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).Create(context.Background(), testInput)
	apiErr, ok := pay2run.IsAPIError(err)
	if !ok {
		t.Fatalf("Create() error = %v; want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d; want 401", apiErr.StatusCode)
	}
	if apiErr.Message != "invalid api key" {
		t.Errorf("Message = %q; want %q", apiErr.Message, "invalid api key")
	}
}

func TestErrorFallsBackToStatusText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("<html>panic</html>"))
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).Get(context.Background(), "act_42")
	apiErr, ok := pay2run.IsAPIError(err)
	if !ok {
		t.Fatalf("Get() error = %v; want *APIError", err)
	}
	if apiErr.Message != http.StatusText(http.StatusInternalServerError) {
		t.Errorf("Message = %q; want status text fallback", apiErr.Message)
	}
}

func TestCreateValidatesPaymentLocally(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer server.Close()

	bad := testInput
	bad.Payment = pay2run.CreatorPaymentConfig{}

	_, err := newTestClient(t, server.URL).Create(context.Background(), bad)
	if !errors.Is(err, pay2run.ErrInvalidPaymentConfig) {
		t.Fatalf("Create() error = %v; want ErrInvalidPaymentConfig", err)
	}
	if n := requests.Load(); n != 0 {
		t.Errorf("requests = %d; want 0 (rejected before the wire)", n)
	}
}

func TestGet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v1/actions/act_42" {
			t.Errorf("request = %s %s; want GET /v1/actions/act_42", r.Method, r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(pay2run.ActionConfig{ID: "act_42", Name: "weather"})
	}))
	defer server.Close()

	action, err := newTestClient(t, server.URL).Get(context.Background(), "act_42")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if action.Name != "weather" {
		t.Errorf("Name = %q; want %q", action.Name, "weather")
	}
}

func TestList(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v1/actions" {
			t.Errorf("request = %s %s; want GET /v1/actions", r.Method, r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode([]pay2run.ActionConfig{{ID: "act_1"}, {ID: "act_2"}})
	}))
	defer server.Close()

	actions, err := newTestClient(t, server.URL).List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(actions) != 2 {
		t.Fatalf("len(actions) = %d; want 2", len(actions))
	}
}

func TestUpdate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/v1/actions/act_42" {
			t.Errorf("request = %s %s; want PATCH /v1/actions/act_42", r.Method, r.URL.Path)
		}

		// Only the set fields travel.
		var raw map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(raw) != 1 {
			t.Errorf("patch fields = %d (%v); want 1", len(raw), raw)
		}
		if _, ok := raw["price"]; !ok {
			t.Error("patch is missing price")
		}

		_ = json.NewEncoder(w).Encode(pay2run.ActionConfig{ID: "act_42", Name: "weather"})
	}))
	defer server.Close()

	price := "0.10"
	updated, err := newTestClient(t, server.URL).Update(context.Background(), "act_42", pay2run.ActionPatch{Price: &price})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.ID != "act_42" {
		t.Errorf("ID = %q; want %q", updated.ID, "act_42")
	}
}

func TestDelete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/v1/actions/act_42" {
			t.Errorf("request = %s %s; want DELETE /v1/actions/act_42", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	if err := newTestClient(t, server.URL).Delete(context.Background(), "act_42"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
}

func TestSingleAttempt(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).Get(context.Background(), "act_42")
	if err == nil {
		t.Fatal("Get() = nil; want error")
	}
	if n := requests.Load(); n != 1 {
		t.Errorf("requests = %d; want exactly 1 (no retries)", n)
	}
}
