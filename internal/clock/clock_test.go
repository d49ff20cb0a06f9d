package clock

import (
	"testing"
	"time"

	"clinicflow/backend/internal/domain"
)

func TestIsPastTime_FixedZoneIgnoresHost(t *testing.T) {
	saved := time.Local
	t.Cleanup(func() { time.Local = saved })

	saoPaulo, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Fatalf("LoadLocation error: %v", err)
	}
	anchor := time.Date(2024, 1, 2, 0, 0, 0, 0, saoPaulo)

	for _, host := range []string{"UTC", "Asia/Tokyo", "Pacific/Honolulu"} {
		t.Run(host, func(t *testing.T) {
			loc, err := time.LoadLocation(host)
			if err != nil {
				t.Fatalf("LoadLocation error: %v", err)
			}
			time.Local = loc

			c, err := Fixed("America/Sao_Paulo", anchor.In(loc))
			if err != nil {
				t.Fatalf("Fixed error: %v", err)
			}
			past, err := c.IsPastTime(domain.MustParseDate("2024-01-01"), "08:00")
			if err != nil {
				t.Fatalf("IsPastTime error: %v", err)
			}
			if !past {
				t.Fatalf("IsPastTime(2024-01-01, 08:00) = false, want true")
			}
			if got := c.Today().String(); got != "2024-01-02" {
				t.Fatalf("Today = %q, want 2024-01-02", got)
			}
		})
	}
}

func TestIsPastTime_MinuteGranularity(t *testing.T) {
	c, err := Fixed("UTC", time.Date(2024, 1, 15, 10, 30, 45, 0, time.UTC))
	if err != nil {
		t.Fatalf("Fixed error: %v", err)
	}
	today := domain.MustParseDate("2024-01-15")

	tests := []struct {
		date domain.Date
		hhmm string
		want bool
	}{
		{date: today, hhmm: "10:29", want: true},
		{date: today, hhmm: "10:30", want: false},
		{date: today, hhmm: "10:31", want: false},
		{date: today.AddDays(-1), hhmm: "23:59", want: true},
		{date: today.AddDays(1), hhmm: "00:00", want: false},
	}
	for _, tt := range tests {
		got, err := c.IsPastTime(tt.date, tt.hhmm)
		if err != nil {
			t.Fatalf("IsPastTime(%s, %s) error: %v", tt.date, tt.hhmm, err)
		}
		if got != tt.want {
			t.Fatalf("IsPastTime(%s, %s) = %v, want %v", tt.date, tt.hhmm, got, tt.want)
		}
	}

	if _, err := c.IsPastTime(today, "25:00"); err == nil {
		t.Fatalf("expected error for invalid time")
	}
}

func TestIsPastDate(t *testing.T) {
	c, err := Fixed("UTC", time.Date(2024, 1, 15, 23, 59, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Fixed error: %v", err)
	}
	if c.IsPastDate(domain.MustParseDate("2024-01-15")) {
		t.Fatalf("today must not be past")
	}
	if !c.IsPastDate(domain.MustParseDate("2024-01-14")) {
		t.Fatalf("yesterday must be past")
	}
	if c.MinutesNow() != 23*60+59 {
		t.Fatalf("MinutesNow = %d, want %d", c.MinutesNow(), 23*60+59)
	}
}

func TestNew_RejectsUnknownZone(t *testing.T) {
	if _, err := New("Not/AZone", nil); err == nil {
		t.Fatalf("expected error")
	}
}
