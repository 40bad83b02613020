package validation

import (
	"errors"
	"strings"
	"testing"
)

func TestParseLocationID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{"simple", "1", 1, false},
		{"padded", "  42 ", 42, false},
		{"empty", "", 0, true},
		{"spaces", "   ", 0, true},
		{"zero", "0", 0, true},
		{"negative", "-3", 0, true},
		{"name", "Warehouse-A", 0, true},
		{"float", "1.5", 0, true},
		{"overflow", "99999999999999999999", 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseLocationID(tc.input)
			if tc.wantErr {
				if !errors.Is(err, ErrLocationIDInvalid) {
					t.Fatalf("ParseLocationID(%q) error = %v, want ErrLocationIDInvalid", tc.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseLocationID(%q) error = %v", tc.input, err)
			}
			if got != tc.want {
				t.Errorf("ParseLocationID(%q) = %d, want %d", tc.input, got, tc.want)
			}
		})
	}
}

func TestValidateMessage(t *testing.T) {
	got, err := ValidateMessage("  Heavy rain expected, secure the loading bay.\nStay safe.  ", 0)
	if err != nil {
		t.Fatalf("ValidateMessage() error = %v", err)
	}
	if got != "Heavy rain expected, secure the loading bay.\nStay safe." {
		t.Errorf("ValidateMessage() = %q, want trimmed input", got)
	}

	if got, err := ValidateMessage("   ", 10); err != nil || got != "" {
		t.Errorf("ValidateMessage(blank) = %q, %v, want empty and nil", got, err)
	}
}

func TestValidateMessage_TooLong(t *testing.T) {
	_, err := ValidateMessage(strings.Repeat("á", 11), 10)
	if !errors.Is(err, ErrMessageTooLong) {
		t.Errorf("error = %v, want ErrMessageTooLong", err)
	}
	if _, err := ValidateMessage(strings.Repeat("á", 10), 10); err != nil {
		t.Errorf("10 runes should fit a 10 rune limit, got %v", err)
	}
}

func TestValidateMessage_InvalidChars(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"nul", "rain\x00alert"},
		{"escape", "rain\x1b[31m"},
		{"invalid utf8", "rain\xff"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateMessage(tc.input, 100)
			if !errors.Is(err, ErrMessageInvalidChars) {
				t.Errorf("error = %v, want ErrMessageInvalidChars", err)
			}
		})
	}
}

func TestValidateJobName(t *testing.T) {
	for _, ok := range []string{"sync", "digest", "batch-report"} {
		if _, err := ValidateJobName(ok); err != nil {
			t.Errorf("ValidateJobName(%q) error = %v", ok, err)
		}
	}
	for _, bad := range []string{"", "Sync", "batch_report", "../etc"} {
		if _, err := ValidateJobName(bad); !errors.Is(err, ErrJobNameInvalid) {
			t.Errorf("ValidateJobName(%q) error = %v, want ErrJobNameInvalid", bad, err)
		}
	}
}
