package daemonctl

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"callaudit/internal/api"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewForAddress(strings.TrimPrefix(srv.URL, "http://"), "secret")
}

func TestClientStatus(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/status" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected authorization header %q", got)
		}
		_ = json.NewEncoder(w).Encode(api.DaemonStatus{Running: true, PID: 4242})
	}))

	status, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running || status.PID != 4242 {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestClientListCallsFilters(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		statuses := r.URL.Query()["status"]
		if len(statuses) != 2 || statuses[0] != "queued" || statuses[1] != "failed" {
			t.Errorf("unexpected status filters %v", statuses)
		}
		_ = json.NewEncoder(w).Encode(api.CallListResponse{Calls: []api.CallView{{ID: 7, Status: "queued"}}})
	}))

	calls, err := client.ListCalls(context.Background(), "queued", "failed")
	if err != nil {
		t.Fatalf("ListCalls: %v", err)
	}
	if len(calls) != 1 || calls[0].ID != 7 {
		t.Fatalf("unexpected calls: %+v", calls)
	}
}

func TestClientDescribeCallMissing(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "call not found"})
	}))

	detail, err := client.DescribeCall(context.Background(), 99)
	if err != nil {
		t.Fatalf("DescribeCall: %v", err)
	}
	if detail != nil {
		t.Fatalf("expected nil detail, got %+v", detail)
	}
}

func TestClientReap(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		if got := r.URL.Query().Get("age"); got != "45m0s" {
			t.Errorf("unexpected age %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]int{"reaped": 3})
	}))

	count, err := client.Reap(context.Background(), 45*time.Minute)
	if err != nil {
		t.Fatalf("Reap: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 reaped, got %d", count)
	}
}

func TestClientHealth(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/health" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(api.HealthReport{
			Calls:    api.CallHealthView{Total: 5, Failed: 1},
			Database: api.DatabaseHealthView{IntegrityOK: true},
		})
	}))

	report, err := client.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if report.Calls.Total != 5 || report.Calls.Failed != 1 || !report.Database.IntegrityOK {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestClientStatusError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
	}))

	_, err := client.Status(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %T", err)
	}
	if statusErr.Code != http.StatusUnauthorized || statusErr.Message != "unauthorized" {
		t.Fatalf("unexpected status error: %+v", statusErr)
	}
}

func TestNewForAddressBarePort(t *testing.T) {
	client := NewForAddress(":7133", "")
	if client.baseURL != "http://127.0.0.1:7133" {
		t.Fatalf("unexpected base url %q", client.baseURL)
	}
}
