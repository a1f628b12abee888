// Package sandbox runs in-process mock servers for every external
// provider so the full pipeline can execute offline. Responses are
// deterministic: enrichment is derived from the lead's name and domain,
// delivery always accepts, and engagement stats are fixed.
package sandbox

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"

	"github.com/ignite/leadflow/internal/config"
	"github.com/ignite/leadflow/internal/lead"
)

// Manager owns the mock provider servers.
type Manager struct {
	apollo        *httptest.Server
	betterContact *httptest.Server
	clay          *httptest.Server
	instantly     *httptest.Server
	ghl           *httptest.Server

	queued atomic.Int64
	synced atomic.Int64
	jobSeq atomic.Int64
}

// New starts all mock servers.
func New() *Manager {
	m := &Manager{}
	m.apollo = httptest.NewServer(http.HandlerFunc(m.handleApollo))
	m.betterContact = httptest.NewServer(http.HandlerFunc(m.handleBetterContact))
	m.clay = httptest.NewServer(http.HandlerFunc(m.handleClay))
	m.instantly = httptest.NewServer(http.HandlerFunc(m.handleInstantly))
	m.ghl = httptest.NewServer(http.HandlerFunc(m.handleGHL))
	return m
}

// Close shuts down all mock servers.
func (m *Manager) Close() {
	m.apollo.Close()
	m.betterContact.Close()
	m.clay.Close()
	m.instantly.Close()
	m.ghl.Close()
}

// Apply points provider configs at the mock servers.
func (m *Manager) Apply(cfg *config.Config) {
	cfg.Apollo.BaseURL = m.apollo.URL
	cfg.Apollo.APIKey = "sandbox"
	cfg.Apollo.Enabled = true
	cfg.BetterContact.BaseURL = m.betterContact.URL
	cfg.BetterContact.APIKey = "sandbox"
	cfg.BetterContact.Enabled = true
	cfg.Clay.BaseURL = m.clay.URL
	cfg.Clay.APIKey = "sandbox"
	cfg.Clay.Enabled = true
	cfg.Instantly.BaseURL = m.instantly.URL
	cfg.Instantly.APIKey = "sandbox"
	cfg.Instantly.CampaignID = "sandbox-campaign"
	cfg.Instantly.Enabled = true
	cfg.GHL.BaseURL = m.ghl.URL
	cfg.GHL.TokenURL = m.ghl.URL + "/oauth/token"
	cfg.GHL.ClientID = "sandbox"
	cfg.GHL.ClientSecret = "sandbox"
	cfg.GHL.LocationID = "sandbox-location"
	cfg.GHL.Enabled = true
}

// SampleLeads returns a small deterministic batch so a sandbox pipeline
// run has input without any scrape source configured.
func SampleLeads() []*lead.Lead {
	specs := []struct {
		email, first, last, title, company, industry, location string
		size                                                   int
	}{
		{"jane@acme.io", "Jane", "Rivera", "VP Sales", "Acme", "SaaS", "Austin, TX", 120},
		{"omar@northpeak.co", "Omar", "Haddad", "Head of Growth", "Northpeak", "Fintech", "Denver, CO", 45},
		{"lena@brightops.dev", "Lena", "Fischer", "Director of Sales", "BrightOps", "SaaS", "Berlin", 80},
		{"sam@unknowndomain.test", "Sam", "Quinn", "Analyst", "Mystery Co", "", "", 0},
	}
	leads := make([]*lead.Lead, 0, len(specs))
	for _, s := range specs {
		l := lead.New(s.email, s.company)
		l.FirstName = s.first
		l.LastName = s.last
		l.Title = s.title
		l.Industry = s.industry
		l.Location = s.location
		l.CompanySize = s.size
		l.Source = "sandbox"
		leads = append(leads, l)
	}
	return leads
}

// URLs lists the mock server base URLs by provider name.
func (m *Manager) URLs() map[string]string {
	return map[string]string{
		"apollo":        m.apollo.URL,
		"bettercontact": m.betterContact.URL,
		"clay":          m.clay.URL,
		"instantly":     m.instantly.URL,
		"ghl":           m.ghl.URL,
	}
}

// QueuedCount reports how many leads the mock Instantly accepted.
func (m *Manager) QueuedCount() int64 { return m.queued.Load() }

// SyncedCount reports how many contacts the mock GHL upserted.
func (m *Manager) SyncedCount() int64 { return m.synced.Load() }

// handleApollo serves POST /people/match. Leads whose domain starts
// with "unknown" get no match, so waterfall fallback paths run too.
func (m *Manager) handleApollo(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/people/match" || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req struct {
		FirstName    string `json:"first_name"`
		LastName     string `json:"last_name"`
		Organization string `json:"organization_name"`
		Domain       string `json:"domain"`
	}
	json.NewDecoder(r.Body).Decode(&req)

	if strings.HasPrefix(req.Domain, "unknown") {
		writeJSON(w, map[string]interface{}{"person": nil})
		return
	}

	email := syntheticEmail(req.FirstName, req.Domain)
	writeJSON(w, map[string]interface{}{
		"person": map[string]interface{}{
			"email":        email,
			"email_status": "verified",
			"title":        "VP Sales",
			"linkedin_url": "https://linkedin.com/in/" + strings.ToLower(req.FirstName),
			"city":         "Austin",
			"state":        "TX",
			"country":      "US",
			"organization": map[string]interface{}{
				"industry":                "SaaS",
				"estimated_num_employees": 120,
				"technology_names":        []string{"Salesforce", "HubSpot"},
			},
		},
	})
}

// handleBetterContact serves the async job API. Jobs terminate on the
// first poll.
func (m *Manager) handleBetterContact(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/async":
		id := m.jobSeq.Add(1)
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, map[string]string{"id": fmt.Sprintf("job-%d", id)})

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/async/"):
		writeJSON(w, map[string]interface{}{
			"status": "terminated",
			"data": []map[string]interface{}{{
				"contact_email_address":        "fallback@sandbox.test",
				"contact_email_address_status": "deliverable",
				"contact_job_title":            "Head of Growth",
			}},
		})

	default:
		http.NotFound(w, r)
	}
}

// handleClay serves POST /enrich.
func (m *Manager) handleClay(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/enrich" || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req struct {
		FirstName string `json:"first_name"`
		Domain    string `json:"domain"`
	}
	json.NewDecoder(r.Body).Decode(&req)

	writeJSON(w, map[string]interface{}{
		"found": true,
		"contact": map[string]interface{}{
			"email":          syntheticEmail(req.FirstName, req.Domain),
			"email_verified": true,
			"title":          "Director of Sales",
			"location":       "Remote",
		},
		"company": map[string]interface{}{
			"industry":   "SaaS",
			"headcount":  80,
			"tech_stack": []string{"Outreach"},
		},
	})
}

// handleInstantly serves lead queueing and campaign analytics.
func (m *Manager) handleInstantly(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/leads":
		n := m.queued.Add(1)
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, map[string]string{"id": fmt.Sprintf("il-%d", n)})

	case r.Method == http.MethodGet && r.URL.Path == "/campaigns/analytics":
		queued := m.queued.Load()
		writeJSON(w, []map[string]interface{}{{
			"campaign_id":        r.URL.Query().Get("id"),
			"leads_count":        queued,
			"emails_sent_count":  queued,
			"open_count":         queued / 2,
			"reply_count":        queued / 10,
			"bounced_count":      0,
			"unsubscribed_count": 0,
		}})

	default:
		http.NotFound(w, r)
	}
}

// handleGHL serves the OAuth token endpoint plus contact upserts and notes.
func (m *Manager) handleGHL(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/oauth/token":
		writeJSON(w, map[string]interface{}{
			"access_token": "sandbox-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})

	case r.Method == http.MethodPost && r.URL.Path == "/contacts/upsert":
		n := m.synced.Add(1)
		writeJSON(w, map[string]interface{}{
			"contact": map[string]string{"id": fmt.Sprintf("ct-%d", n)},
			"new":     true,
		})

	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/notes"):
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, map[string]string{"id": "note-1"})

	default:
		http.NotFound(w, r)
	}
}

func syntheticEmail(firstName, domain string) string {
	name := strings.ToLower(strings.TrimSpace(firstName))
	if name == "" {
		name = "contact"
	}
	if domain == "" {
		domain = "sandbox.test"
	}
	return name + "@" + domain
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
