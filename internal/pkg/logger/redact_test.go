package logger

import "testing"

func TestRedactEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"john.doe@example.com", "jo***@example.com"},
		{"ab@example.com", "***@example.com"},
		{"not-an-email", "***@***"},
		{"a@b@c", "***@***"},
	}
	for _, tt := range tests {
		if got := RedactEmail(tt.in); got != tt.want {
			t.Errorf("RedactEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRedactPhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+1 (415) 555-0134", "***34"},
		{"5550134", "***34"},
		{"x", "***"},
	}
	for _, tt := range tests {
		if got := RedactPhone(tt.in); got != tt.want {
			t.Errorf("RedactPhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRedactPIIValueEmbeddedEmail(t *testing.T) {
	got := redactPIIValue("note", "reached out to jane.smith@acme.io yesterday")
	want := "reached out to ja***@acme.io yesterday"
	if got != want {
		t.Errorf("redactPIIValue = %q, want %q", got, want)
	}
}

func TestRedactPIIValueLinkedIn(t *testing.T) {
	got := redactPIIValue("profile", "https://www.linkedin.com/in/jane-smith-123")
	if got != "https://www.linkedin.com/in/***" {
		t.Errorf("redactPIIValue = %q", got)
	}
}
