package notification

import (
	"testing"
	"time"

	"github.com/incubator-platform/support-chat/internal/errs"
)

func TestInQuietHours(t *testing.T) {
	at := func(h, m int) time.Time { return time.Date(2026, 3, 10, h, m, 0, 0, time.UTC) }
	tests := []struct {
		name       string
		start, end string
		now        time.Time
		want       bool
	}{
		{name: "wrap, late evening", start: "22:00", end: "08:00", now: at(23, 0), want: true},
		{name: "wrap, early morning", start: "22:00", end: "08:00", now: at(3, 30), want: true},
		{name: "wrap, morning", start: "22:00", end: "08:00", now: at(9, 0), want: false},
		{name: "wrap, start bound", start: "22:00", end: "08:00", now: at(22, 0), want: true},
		{name: "wrap, end bound", start: "22:00", end: "08:00", now: at(8, 0), want: true},
		{name: "day window, inside", start: "09:00", end: "17:00", now: at(12, 0), want: true},
		{name: "day window, outside", start: "09:00", end: "17:00", now: at(20, 0), want: false},
		{name: "empty window", start: "10:00", end: "10:00", now: at(10, 0), want: false},
		{name: "malformed bound", start: "25:00", end: "08:00", now: at(23, 0), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InQuietHours(tt.now, tt.start, tt.end, time.UTC); got != tt.want {
				t.Errorf("InQuietHours(%s, %s-%s) = %v, want %v", tt.now.Format("15:04"), tt.start, tt.end, got, tt.want)
			}
		})
	}
}

func TestInQuietHoursUsesRecipientZone(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	// 21:30 UTC is 22:30 in Paris (winter time).
	now := time.Date(2026, 1, 10, 21, 30, 0, 0, time.UTC)
	if !InQuietHours(now, "22:00", "08:00", paris) {
		t.Error("22:30 Paris time not in 22:00-08:00")
	}
	if InQuietHours(now, "22:00", "08:00", time.UTC) {
		t.Error("21:30 UTC in 22:00-08:00")
	}
}

func TestQuietHoursEnd(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{name: "before midnight", now: time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC), want: time.Date(2026, 3, 11, 8, 0, 0, 0, time.UTC)},
		{name: "after midnight", now: time.Date(2026, 3, 11, 2, 0, 0, 0, time.UTC), want: time.Date(2026, 3, 11, 8, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := quietHoursEnd(tt.now, "08:00", time.UTC); !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPreferenceStoreDefaults(t *testing.T) {
	s := NewPreferenceStore("Europe/Paris")
	p := s.Get("u1")
	want := DefaultPreferences("u1", "Europe/Paris")
	if p != want {
		t.Errorf("defaults: got %+v, want %+v", p, want)
	}
	if len(p.LeadTime.Tiers()) != 4 {
		t.Errorf("default lead time expands to %v", p.LeadTime.Tiers())
	}
}

func TestPreferenceStoreUpdateValidates(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Preferences)
		wantErr bool
	}{
		{name: "valid", mutate: func(p *Preferences) { p.LeadTime = Lead6h; p.Timezone = "America/New_York" }},
		{name: "unknown lead time", mutate: func(p *Preferences) { p.LeadTime = "2h" }, wantErr: true},
		{name: "bad quiet start", mutate: func(p *Preferences) { p.QuietHoursStart = "24:30" }, wantErr: true},
		{name: "bad quiet end", mutate: func(p *Preferences) { p.QuietHoursEnd = "8h" }, wantErr: true},
		{name: "unknown timezone", mutate: func(p *Preferences) { p.Timezone = "Mars/Olympus" }, wantErr: true},
		{name: "empty timezone", mutate: func(p *Preferences) { p.Timezone = "" }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewPreferenceStore("UTC")
			p := s.Get("u1")
			tt.mutate(&p)
			got, err := s.Update("u1", p)
			if tt.wantErr {
				if !errs.IsValidation(err) {
					t.Fatalf("Update: got %v, want validation error", err)
				}
				if s.Get("u1") != DefaultPreferences("u1", "UTC") {
					t.Error("rejected update was stored")
				}
				return
			}
			if err != nil {
				t.Fatalf("Update: %v", err)
			}
			if s.Get("u1") != got {
				t.Errorf("stored %+v, returned %+v", s.Get("u1"), got)
			}
		})
	}
}

func TestPreferencesLocation(t *testing.T) {
	paris := DefaultPreferences("u1", "Europe/Paris")
	first := paris.Location()
	if first.String() != "Europe/Paris" {
		t.Fatalf("location: got %s", first)
	}
	if again := DefaultPreferences("u2", "Europe/Paris").Location(); again != first {
		t.Error("zone loaded twice instead of reused")
	}
	if got := DefaultPreferences("u3", "Mars/Olympus").Location(); got != time.UTC {
		t.Errorf("unknown zone: got %s, want UTC", got)
	}
}
