// Package crafter renders personalized campaign messages from Liquid
// templates. Templates receive lead and enrichment variables; strict
// mode surfaces missing variables at preview time while production sends
// render lax.
package crafter

import (
	"crypto/md5"
	"fmt"
	"html"
	"net/url"
	"strings"
	"sync"

	"github.com/osteele/liquid"

	"github.com/ignite/leadflow/internal/lead"
)

// RenderMode determines how the crafter handles missing variables.
type RenderMode int

const (
	// RenderModeLax renders missing vars as empty strings (production sends)
	RenderModeLax RenderMode = iota
	// RenderModeStrict fails on unresolved required vars (preview/validation)
	RenderModeStrict
)

// Template is a campaign message template pair.
type Template struct {
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	// Strategy binds the template to an RL action arm.
	Strategy string `json:"strategy"`
}

// Message is a rendered campaign message for one lead.
type Message struct {
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	Strategy string `json:"strategy"`
	// Fingerprint dedupes identical renders across runs.
	Fingerprint string `json:"fingerprint"`
}

// Crafter renders Liquid templates with caching and custom filters.
type Crafter struct {
	engine    *liquid.Engine
	cache     sync.Map // map[string]*liquid.Template keyed by source hash
	templates map[string]Template
	mu        sync.RWMutex
}

// New creates a crafter with the domain filter set registered.
func New() *Crafter {
	c := &Crafter{
		engine:    liquid.NewEngine(),
		templates: make(map[string]Template),
	}
	c.registerFilters()
	return c
}

// registerFilters adds the filters campaign templates rely on.
func (c *Crafter) registerFilters() {
	// Default value: {{ first_name | default: "there" }}
	c.engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		s := fmt.Sprintf("%v", value)
		if s == "" || s == "<nil>" {
			return defaultVal
		}
		return value
	})

	// Capitalize first letter: {{ company | capitalize }}
	c.engine.RegisterFilter("capitalize", func(s string) string {
		if len(s) == 0 {
			return s
		}
		return strings.ToUpper(string(s[0])) + s[1:]
	})

	// Possessive: {{ company | possessive }} → "Acme's"
	c.engine.RegisterFilter("possessive", func(s string) string {
		if s == "" {
			return s
		}
		if strings.HasSuffix(s, "s") {
			return s + "'"
		}
		return s + "'s"
	})

	// Truncate with ellipsis: {{ news_title | truncate: 60 }}
	c.engine.RegisterFilter("truncate", func(s string, length int) string {
		if len(s) <= length {
			return s
		}
		if length <= 3 {
			return s[:length]
		}
		return s[:length-3] + "..."
	})

	// URL encode: {{ email | urlencode }}
	c.engine.RegisterFilter("urlencode", func(s string) string {
		return url.QueryEscape(s)
	})

	// HTML escape: {{ user_input | escape }}
	c.engine.RegisterFilter("escape", func(s string) string {
		return html.EscapeString(s)
	})

	// First list element: {{ tech_stack | first_item }}
	c.engine.RegisterFilter("first_item", func(v interface{}) interface{} {
		if items, ok := v.([]interface{}); ok && len(items) > 0 {
			return items[0]
		}
		if items, ok := v.([]string); ok && len(items) > 0 {
			return items[0]
		}
		return ""
	})
}

// Register adds or replaces a named template.
func (c *Crafter) Register(t Template) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.templates[t.Name] = t
}

// TemplateForStrategy returns the first template bound to the strategy.
func (c *Crafter) TemplateForStrategy(strategy string) (Template, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, t := range c.templates {
		if t.Strategy == strategy {
			return t, true
		}
	}
	return Template{}, false
}

// Bindings builds the template variable map for a lead plus extras
// (news hooks, sender identity). Extras win on key collision.
func Bindings(l *lead.Lead, extras map[string]interface{}) map[string]interface{} {
	b := map[string]interface{}{
		"first_name":   l.FirstName,
		"last_name":    l.LastName,
		"full_name":    l.FullName(),
		"title":        l.Title,
		"company":      l.Company,
		"domain":       l.Domain,
		"industry":     l.Industry,
		"company_size": l.CompanySize,
		"location":     l.Location,
		"email":        l.Email,
		"tech_stack":   l.TechStack,
		"tier":         string(l.Tier),
	}
	for k, v := range extras {
		b[k] = v
	}
	return b
}

// requiredVars are bindings a message must actually resolve in strict mode.
var requiredVars = []string{"first_name", "company"}

// Render renders the named template for the given bindings.
// In strict mode, empty required bindings are an error.
func (c *Crafter) Render(name string, bindings map[string]interface{}, mode RenderMode) (*Message, error) {
	c.mu.RLock()
	t, ok := c.templates[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("template %q not registered", name)
	}

	if mode == RenderModeStrict {
		for _, v := range requiredVars {
			val, present := bindings[v]
			if !present || fmt.Sprintf("%v", val) == "" {
				return nil, fmt.Errorf("required variable %q is empty", v)
			}
		}
	}

	subject, err := c.renderString(t.Subject, bindings)
	if err != nil {
		return nil, fmt.Errorf("render subject: %w", err)
	}
	body, err := c.renderString(t.Body, bindings)
	if err != nil {
		return nil, fmt.Errorf("render body: %w", err)
	}

	return &Message{
		Subject:     strings.TrimSpace(subject),
		Body:        body,
		Strategy:    t.Strategy,
		Fingerprint: fmt.Sprintf("%x", md5.Sum([]byte(subject+"\x00"+body))),
	}, nil
}

// renderString parses (with cache) and renders one template string.
func (c *Crafter) renderString(src string, bindings map[string]interface{}) (string, error) {
	key := fmt.Sprintf("%x", md5.Sum([]byte(src)))

	var tmpl *liquid.Template
	if cached, ok := c.cache.Load(key); ok {
		tmpl = cached.(*liquid.Template)
	} else {
		parsed, err := c.engine.ParseTemplate([]byte(src))
		if err != nil {
			return "", fmt.Errorf("parse template: %w", err)
		}
		c.cache.Store(key, parsed)
		tmpl = parsed
	}

	out, err := tmpl.Render(bindings)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
