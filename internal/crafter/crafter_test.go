package crafter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ignite/leadflow/internal/lead"
)

func testLead() *lead.Lead {
	l := lead.New("jane@acme.io", "Acme")
	l.FirstName = "Jane"
	l.LastName = "Smith"
	l.Title = "VP Sales"
	l.Industry = "SaaS"
	l.TechStack = []string{"Salesforce", "HubSpot"}
	return l
}

func TestRenderBasicTemplate(t *testing.T) {
	c := New()
	c.Register(Template{
		Name:     "value_first",
		Strategy: "value_first",
		Subject:  "{{ company | possessive }} outbound",
		Body:     "Hi {{ first_name | default: \"there\" }},\n\nSaw you use {{ tech_stack | first_item }}.",
	})

	msg, err := c.Render("value_first", Bindings(testLead(), nil), RenderModeLax)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	if msg.Subject != "Acme's outbound" {
		t.Errorf("Subject = %q", msg.Subject)
	}
	if !strings.Contains(msg.Body, "Hi Jane,") {
		t.Errorf("Body missing greeting: %q", msg.Body)
	}
	if !strings.Contains(msg.Body, "Salesforce") {
		t.Errorf("Body missing tech stack item: %q", msg.Body)
	}
	if msg.Fingerprint == "" {
		t.Error("Fingerprint should be set")
	}
}

func TestRenderDefaultFilterOnEmpty(t *testing.T) {
	c := New()
	c.Register(Template{
		Name: "t", Subject: "s",
		Body: "Hi {{ first_name | default: \"there\" }}",
	})

	l := lead.New("x@y.co", "X") // no first name
	msg, err := c.Render("t", Bindings(l, nil), RenderModeLax)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(msg.Body, "Hi there") {
		t.Errorf("Default filter not applied: %q", msg.Body)
	}
}

func TestRenderStrictModeRejectsEmptyRequired(t *testing.T) {
	c := New()
	c.Register(Template{Name: "t", Subject: "s", Body: "b"})

	l := lead.New("x@y.co", "") // empty company
	if _, err := c.Render("t", Bindings(l, nil), RenderModeStrict); err == nil {
		t.Error("Strict mode should reject empty required variable")
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	c := New()
	if _, err := c.Render("missing", nil, RenderModeLax); err == nil {
		t.Error("Expected error for unregistered template")
	}
}

func TestRenderExtrasOverride(t *testing.T) {
	c := New()
	c.Register(Template{Name: "t", Subject: "s", Body: "{{ news_title }}"})

	bindings := Bindings(testLead(), map[string]interface{}{
		"news_title": "Acme raises Series B",
	})
	msg, err := c.Render("t", bindings, RenderModeLax)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(msg.Body, "Series B") {
		t.Errorf("Extra binding not rendered: %q", msg.Body)
	}
}

func TestTemplateForStrategy(t *testing.T) {
	c := New()
	c.Register(Template{Name: "a", Strategy: "direct_ask"})

	if _, ok := c.TemplateForStrategy("direct_ask"); !ok {
		t.Error("Expected template for direct_ask")
	}
	if _, ok := c.TemplateForStrategy("nope"); ok {
		t.Error("Unexpected template for unknown strategy")
	}
}

func TestNewsFetcher(t *testing.T) {
	recent := time.Now().Add(-24 * time.Hour).Format(time.RFC1123Z)
	stale := time.Now().Add(-400 * 24 * time.Hour).Format(time.RFC1123Z)
	feed := `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Acme Blog</title>
<item><title>Old post</title><link>https://acme.io/old</link><pubDate>` + stale + `</pubDate></item>
<item><title>Acme ships v2</title><link>https://acme.io/v2</link><pubDate>` + recent + `</pubDate></item>
</channel></rss>`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(feed))
	}))
	defer server.Close()

	f := NewNewsFetcher(0)
	hook, err := f.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if hook == nil {
		t.Fatal("Expected a news hook")
	}
	if hook.Title != "Acme ships v2" {
		t.Errorf("Expected freshest recent item, got %q", hook.Title)
	}
}

func TestNewsFetcherEmptyURL(t *testing.T) {
	f := NewNewsFetcher(0)
	hook, err := f.Fetch(context.Background(), "")
	if err != nil || hook != nil {
		t.Errorf("Empty URL should return nil, nil; got %v, %v", hook, err)
	}
}
