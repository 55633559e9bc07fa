package units

import (
	"testing"
	"time"
)

func TestIsTimezoneValid(t *testing.T) {
	tests := []struct {
		tz   string
		want bool
	}{
		{"UTC", true},
		{"Europe/Berlin", true},
		{"America/New_York", true},
		{"Not/AZone", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsTimezoneValid(tt.tz); got != tt.want {
			t.Errorf("IsTimezoneValid(%q) = %v, want %v", tt.tz, got, tt.want)
		}
	}
}

func TestConvertTime(t *testing.T) {
	utc := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	t.Run("utc passthrough", func(t *testing.T) {
		got, err := ConvertTime(utc, "UTC")
		if err != nil {
			t.Fatalf("ConvertTime() error = %v", err)
		}
		if !got.Equal(utc) {
			t.Errorf("ConvertTime() = %v, want %v", got, utc)
		}
	})

	t.Run("berlin winter offset", func(t *testing.T) {
		got, err := ConvertTime(utc, "Europe/Berlin")
		if err != nil {
			t.Fatalf("ConvertTime() error = %v", err)
		}
		if !got.Equal(utc) {
			t.Errorf("conversion changed the instant: %v", got)
		}
		if got.Hour() != 13 {
			t.Errorf("ConvertTime() hour = %d, want 13", got.Hour())
		}
	})

	t.Run("unknown zone", func(t *testing.T) {
		got, err := ConvertTime(utc, "Not/AZone")
		if err == nil {
			t.Fatal("ConvertTime() expected an error for an unknown zone")
		}
		if !got.Equal(utc) {
			t.Errorf("ConvertTime() = %v, want the input back on error", got)
		}
	})
}

func TestGetTimezoneLabel(t *testing.T) {
	tests := []struct {
		tz   string
		want string
	}{
		{"UTC", "UTC (+00:00)"},
		{"Europe/Berlin", "Berlin (+01:00/+02:00)"},
		{"Asia/Kolkata", "Kolkata (+05:30)"},
		{"America/Phoenix", "Phoenix (-07:00)"},
		{"America/Los_Angeles", "Los Angeles (-08:00/-07:00)"},
		{"Australia/Lord_Howe", "Lord Howe (+10:30/+11:00)"},
		{"Not/AZone", "Not/AZone"},
	}

	for _, tt := range tests {
		if got := GetTimezoneLabel(tt.tz); got != tt.want {
			t.Errorf("GetTimezoneLabel(%q) = %q, want %q", tt.tz, got, tt.want)
		}
	}
}
