package ghl

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ignite/leadflow/internal/config"
	"github.com/ignite/leadflow/internal/lead"
)

// testServer serves both the OAuth token endpoint and the API.
func testServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token": "tok-1", "token_type": "Bearer", "expires_in": 3600}`))
	})
	mux.HandleFunc("/", handler)
	server := httptest.NewServer(mux)

	client := NewClient(context.Background(), config.GHLConfig{
		ClientID:       "cid",
		ClientSecret:   "secret",
		TokenURL:       server.URL + "/oauth/token",
		BaseURL:        server.URL,
		LocationID:     "loc-1",
		TimeoutSeconds: 5,
	})
	return server, client
}

func TestUpsertContact(t *testing.T) {
	server, client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/contacts/upsert" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Version") != apiVersion {
			t.Error("Missing API version header")
		}

		var req upsertContactRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.LocationID != "loc-1" {
			t.Errorf("LocationID = %q", req.LocationID)
		}
		hasTierTag := false
		for _, tag := range req.Tags {
			if tag == "tier:hot" {
				hasTierTag = true
			}
		}
		if !hasTierTag {
			t.Errorf("Tier tag missing: %v", req.Tags)
		}

		w.Write([]byte(`{"contact": {"id": "ct-9"}, "new": true}`))
	})
	defer server.Close()

	l := lead.New("jane@acme.io", "Acme")
	l.Tier = lead.TierHot
	l.ICPScore = 85

	id, err := client.UpsertContact(context.Background(), l)
	if err != nil {
		t.Fatalf("UpsertContact failed: %v", err)
	}
	if id != "ct-9" {
		t.Errorf("ID = %q", id)
	}
}

func TestUpsertContactAPIError(t *testing.T) {
	server, client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message": "email required"}`))
	})
	defer server.Close()

	if _, err := client.UpsertContact(context.Background(), lead.New("", "Acme")); err == nil {
		t.Error("Expected error on 422")
	}
}

func TestAddNote(t *testing.T) {
	server, client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/contacts/ct-9/notes" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id": "note-1"}`))
	})
	defer server.Close()

	if err := client.AddNote(context.Background(), "ct-9", "sent value_first opener"); err != nil {
		t.Fatalf("AddNote failed: %v", err)
	}
}
