package bettercontact

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ignite/leadflow/internal/config"
	"github.com/ignite/leadflow/internal/lead"
)

func testClient(url string) *Client {
	c := NewClient(config.BetterContactConfig{
		BaseURL:        url,
		APIKey:         "test-key",
		TimeoutSeconds: 5,
		PollSeconds:    1,
	})
	c.pollInterval = 5 * time.Millisecond
	return c
}

func TestEnrichAsyncJob(t *testing.T) {
	var polls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Error("Missing bearer token")
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/async":
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id": "job-1"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/async/job-1":
			if atomic.AddInt32(&polls, 1) < 2 {
				w.Write([]byte(`{"status": "in_progress"}`))
				return
			}
			w.Write([]byte(`{
				"status": "terminated",
				"data": [{
					"contact_email_address": "jane@acme.io",
					"contact_email_address_status": "deliverable",
					"contact_job_title": "VP Sales"
				}]
			}`))
		default:
			t.Errorf("Unexpected request: %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	l := lead.New("", "Acme")
	l.FirstName = "Jane"

	result, err := testClient(server.URL).Enrich(context.Background(), l)
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}
	if result == nil {
		t.Fatal("Expected a result")
	}
	if result.Email != "jane@acme.io" || !result.EmailVerified {
		t.Errorf("Email = %q verified=%v", result.Email, result.EmailVerified)
	}
	if atomic.LoadInt32(&polls) < 2 {
		t.Error("Client should poll until the job terminates")
	}
}

func TestEnrichJobFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id": "job-2"}`))
			return
		}
		w.Write([]byte(`{"status": "failed"}`))
	}))
	defer server.Close()

	if _, err := testClient(server.URL).Enrich(context.Background(), lead.New("", "Acme")); err == nil {
		t.Error("Expected error for failed job")
	}
}

func TestEnrichEmptyTermination(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id": "job-3"}`))
			return
		}
		w.Write([]byte(`{"status": "terminated", "data": []}`))
	}))
	defer server.Close()

	result, err := testClient(server.URL).Enrich(context.Background(), lead.New("", "Acme"))
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}
	if result != nil {
		t.Errorf("Expected nil result, got %+v", result)
	}
}

func TestEnrichContextCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id": "job-4"}`))
			return
		}
		w.Write([]byte(`{"status": "in_progress"}`))
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if _, err := testClient(server.URL).Enrich(ctx, lead.New("", "Acme")); err == nil {
		t.Error("Expected context error while polling")
	}
}
