package tunnelid

import "testing"

func TestMakeAndParse(t *testing.T) {
	id := Make("instance-1", "session-9")
	if id != "tunnel:instance-1:session-9" {
		t.Fatalf("Make = %q", id)
	}

	instanceID, remoteID, err := Parse(id)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if instanceID != "instance-1" || remoteID != "session-9" {
		t.Errorf("Parse = (%q, %q)", instanceID, remoteID)
	}
}

func TestParsePreservesColonsInRemoteID(t *testing.T) {
	instanceID, remoteID, err := Parse("tunnel:peer:a:b:c")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if instanceID != "peer" || remoteID != "a:b:c" {
		t.Errorf("Parse = (%q, %q)", instanceID, remoteID)
	}
}

func TestIsTunnelID(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"tunnel:x:y", true},
		{"tunnel:", true},
		{"local-session", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsTunnelID(tt.input); got != tt.expected {
			t.Errorf("IsTunnelID(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, input := range []string{"local", "tunnel:", "tunnel:onlypeer", "tunnel::x", "tunnel:peer:"} {
		if _, _, err := Parse(input); err == nil {
			t.Errorf("Parse(%q) expected error", input)
		}
	}
}
