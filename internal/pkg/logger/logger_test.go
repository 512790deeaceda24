package logger

import "testing"

func TestRedactEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"john.doe@example.com", "jo***@example.com"},
		{"ab@example.com", "***@example.com"},
		{"a@example.com", "***@example.com"},
		{"not-an-email", "***@***"},
		{"@example.com", "***@***"},
		{"john@", "***@***"},
	}
	for _, tt := range tests {
		if got := RedactEmail(tt.in); got != tt.want {
			t.Errorf("RedactEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRedactValueMasksAddressFields(t *testing.T) {
	if got := redactValue("email", "alice@example.com"); got != "al***@example.com" {
		t.Errorf("email field = %q", got)
	}
	if got := redactValue("from_email", "alice@example.com"); got != "al***@example.com" {
		t.Errorf("from_email field = %q", got)
	}
}

func TestRedactValueKeepsOperationalFields(t *testing.T) {
	// Counters and IDs must survive redaction or failure logs become
	// undiagnosable.
	if got := redactValue("recipients", "2"); got != "2" {
		t.Errorf("recipients count = %q, want 2", got)
	}
	id := "7d44779a-0a83-4f9e-9f5c-2b8f1f3f9a11"
	if got := redactValue("recipient_id", id); got != id {
		t.Errorf("recipient_id = %q, want %q", got, id)
	}
}

func TestRedactValueMasksEmbeddedAddresses(t *testing.T) {
	got := redactValue("error", "550 mailbox alice@example.com unavailable")
	if got != "550 mailbox al***@example.com unavailable" {
		t.Errorf("embedded address = %q", got)
	}
}
