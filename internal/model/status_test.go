package model

import "testing"

func TestIsTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusPending, false},
		{StatusSuccess, true},
		{StatusFailed, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := IsTerminal(tt.status); got != tt.terminal {
				t.Errorf("IsTerminal(%q) = %v, want %v", tt.status, got, tt.terminal)
			}
		})
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in      string
		want    Status
		wantErr bool
	}{
		{"pending", StatusPending, false},
		{"success", StatusSuccess, false},
		{"failed", StatusFailed, false},
		{"completed", StatusSuccess, false},
		{"lost", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseStatus(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseStatus(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidateResultTransition(t *testing.T) {
	if err := ValidateResultTransition(StatusPending, StatusSuccess); err != nil {
		t.Errorf("pending → success: %v", err)
	}
	if err := ValidateResultTransition(StatusPending, StatusFailed); err != nil {
		t.Errorf("pending → failed: %v", err)
	}
	if err := ValidateResultTransition(StatusSuccess, StatusFailed); err == nil {
		t.Error("success → failed should be rejected")
	}
	if err := ValidateResultTransition(StatusPending, StatusPending); err == nil {
		t.Error("pending → pending should be rejected")
	}
}
