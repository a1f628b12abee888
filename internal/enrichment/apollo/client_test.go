package apollo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ignite/leadflow/internal/config"
	"github.com/ignite/leadflow/internal/lead"
)

func testClient(url string) *Client {
	return NewClient(config.ApolloConfig{
		BaseURL:        url,
		APIKey:         "test-key",
		TimeoutSeconds: 5,
	})
}

func TestEnrichMatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/people/match" || r.Method != http.MethodPost {
			t.Errorf("Unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "test-key" {
			t.Error("Missing API key header")
		}

		var req matchRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Organization != "Acme" {
			t.Errorf("Organization = %q", req.Organization)
		}

		w.Write([]byte(`{
			"person": {
				"email": "jane@acme.io",
				"email_status": "verified",
				"title": "VP Sales",
				"linkedin_url": "https://linkedin.com/in/jane",
				"city": "Austin",
				"state": "TX",
				"country": "US",
				"organization": {
					"industry": "SaaS",
					"estimated_num_employees": 120,
					"technology_names": ["Salesforce"]
				}
			}
		}`))
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
	if result.CompanySize != 120 || result.Industry != "SaaS" {
		t.Errorf("Company fields not parsed: %+v", result)
	}
	if result.Location != "Austin, TX, US" {
		t.Errorf("Location = %q", result.Location)
	}
	if result.Quality < 0.9 {
		t.Errorf("Full match should score high quality, got %f", result.Quality)
	}
}

func TestEnrichNoMatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"person": null}`))
	}))
	defer server.Close()

	result, err := testClient(server.URL).Enrich(context.Background(), lead.New("", "Nobody Inc"))
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}
	if result != nil {
		t.Errorf("Expected nil result for no match, got %+v", result)
	}
}

func TestEnrichAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": "invalid api key"}`))
	}))
	defer server.Close()

	if _, err := testClient(server.URL).Enrich(context.Background(), lead.New("", "Acme")); err == nil {
		t.Error("Expected error on 401")
	}
}
