package notification

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/incubator-platform/support-chat/internal/errs"
)

// LeadTime is the reminder selection a user picks in their preferences.
type LeadTime string

const (
	Lead24h LeadTime = "24h"
	Lead12h LeadTime = "12h"
	Lead6h  LeadTime = "6h"
	Lead1h  LeadTime = "1h"
	LeadAll LeadTime = "all"
)

// Tiers expands a selection into reminder tiers, earliest first.
func (l LeadTime) Tiers() []Tier {
	switch l {
	case LeadAll:
		return []Tier{Tier24h, Tier12h, Tier6h, Tier1h}
	case Lead24h, Lead12h, Lead6h, Lead1h:
		return []Tier{Tier(l)}
	}
	return nil
}

// Preferences are per-user notification settings. Quiet hours are local
// to Timezone.
type Preferences struct {
	UserID          string   `json:"user_id"`
	EmailEnabled    bool     `json:"email_enabled"`
	PushEnabled     bool     `json:"push_enabled"`
	LeadTime        LeadTime `json:"lead_time" validate:"required,oneof=24h 12h 6h 1h all"`
	QuietHoursStart string   `json:"quiet_hours_start" validate:"required,datetime=15:04"`
	QuietHoursEnd   string   `json:"quiet_hours_end" validate:"required,datetime=15:04"`
	Timezone        string   `json:"timezone" validate:"required,timezone"`
}

func DefaultPreferences(userID, timezone string) Preferences {
	return Preferences{
		UserID:          userID,
		EmailEnabled:    true,
		PushEnabled:     true,
		LeadTime:        LeadAll,
		QuietHoursStart: "22:00",
		QuietHoursEnd:   "08:00",
		Timezone:        timezone,
	}
}

// zones memoizes loaded locations by name; the scheduler resolves one per
// due entry while holding its lock.
var zones sync.Map

// Location falls back to UTC when the stored zone cannot be loaded.
func (p Preferences) Location() *time.Location {
	if loc, ok := zones.Load(p.Timezone); ok {
		return loc.(*time.Location)
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		loc = time.UTC
	}
	zones.Store(p.Timezone, loc)
	return loc
}

// PreferenceStore creates preferences lazily on first access.
type PreferenceStore struct {
	mu        sync.RWMutex
	prefs     map[string]Preferences
	defaultTZ string
	validate  *validator.Validate
}

func NewPreferenceStore(defaultTZ string) *PreferenceStore {
	return &PreferenceStore{
		prefs:     make(map[string]Preferences),
		defaultTZ: defaultTZ,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (s *PreferenceStore) Get(userID string) Preferences {
	s.mu.RLock()
	p, ok := s.prefs[userID]
	s.mu.RUnlock()
	if ok {
		return p
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.prefs[userID]; ok {
		return p
	}
	p = DefaultPreferences(userID, s.defaultTZ)
	s.prefs[userID] = p
	return p
}

// Update replaces the user's preferences after validation.
func (s *PreferenceStore) Update(userID string, p Preferences) (Preferences, error) {
	p.UserID = userID
	if err := s.validate.Struct(p); err != nil {
		return Preferences{}, errs.Invalid("invalid preferences: %v", err)
	}
	s.mu.Lock()
	s.prefs[userID] = p
	s.mu.Unlock()
	return p, nil
}

// clockMinutes parses "HH:MM" into minutes since midnight.
func clockMinutes(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// InQuietHours reports whether now, read in loc, falls inside the
// [start, end] window. A window whose start is after its end wraps past
// midnight. Equal bounds mean no quiet hours.
func InQuietHours(now time.Time, start, end string, loc *time.Location) bool {
	s, err := clockMinutes(start)
	if err != nil {
		return false
	}
	e, err := clockMinutes(end)
	if err != nil {
		return false
	}
	if s == e {
		return false
	}
	local := now.In(loc)
	m := local.Hour()*60 + local.Minute()
	if s < e {
		return m >= s && m <= e
	}
	return m >= s || m <= e
}

// quietHoursEnd returns the next end of the window as seen from now:
// today when it is still ahead, otherwise tomorrow.
func quietHoursEnd(now time.Time, end string, loc *time.Location) time.Time {
	e, err := clockMinutes(end)
	if err != nil {
		return now
	}
	local := now.In(loc)
	at := time.Date(local.Year(), local.Month(), local.Day(), e/60, e%60, 0, 0, loc)
	if local.Hour()*60+local.Minute() > e {
		at = at.AddDate(0, 0, 1)
	}
	return at
}
