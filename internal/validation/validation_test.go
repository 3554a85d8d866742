package validation

import (
	"strings"
	"testing"
)

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr string
	}{
		{name: "plain", key: "theme"},
		{name: "composed", key: "profile_name"},
		{name: "unicode", key: "préférence"},
		{name: "empty", key: "", wantErr: "cannot be empty"},
		{name: "newline", key: "a\nb", wantErr: "control character"},
		{name: "too long", key: strings.Repeat("k", MaxKeyLength+1), wantErr: "too long"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKey(tt.key)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateIdentifier(t *testing.T) {
	valid := []string{"preferences", "_prefs", "Prefs2"}
	for _, name := range valid {
		if err := ValidateIdentifier(name); err != nil {
			t.Errorf("ValidateIdentifier(%q) = %v", name, err)
		}
	}

	invalid := []string{"", "2prefs", "prefs;drop", "my-table", "select", "VALUE"}
	for _, name := range invalid {
		if err := ValidateIdentifier(name); err == nil {
			t.Errorf("ValidateIdentifier(%q) expected error", name)
		}
	}
}

func TestValidateEnumNames(t *testing.T) {
	if err := ValidateEnumNames([]string{"RED", "GREEN"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, names := range [][]string{nil, {"RED", ""}, {"RED", "RED"}} {
		if err := ValidateEnumNames(names); err == nil {
			t.Errorf("ValidateEnumNames(%q) expected error", names)
		}
	}
}
