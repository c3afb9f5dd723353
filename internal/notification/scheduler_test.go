package notification

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []Email
	err  error
}

func (m *recordingMailer) Send(_ context.Context, e Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, e)
	return nil
}

type pushCall struct {
	userID string
	n      PushNotification
}

type recordingPusher struct {
	mu    sync.Mutex
	calls []pushCall
	fails int
}

func (p *recordingPusher) Push(_ context.Context, userID string, n PushNotification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fails > 0 {
		p.fails--
		return errors.New("broker unavailable")
	}
	p.calls = append(p.calls, pushCall{userID: userID, n: n})
	return nil
}

var baseNow = time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

type harness struct {
	clock  *fakeClock
	mailer *recordingMailer
	pusher *recordingPusher
	prefs  *PreferenceStore
	sched  *Scheduler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:  &fakeClock{now: baseNow},
		mailer: &recordingMailer{},
		pusher: &recordingPusher{},
		prefs:  NewPreferenceStore("UTC"),
	}
	h.sched = NewScheduler(h.prefs, h.mailer, h.pusher, WithSchedulerClock(h.clock.Now))
	return h
}

func session(id string, startsIn time.Duration) Session {
	return Session{
		ID:        id,
		UserID:    "user-1",
		UserEmail: "founder@example.com",
		CoachName: "Alice",
		Topic:     "Pitch deck",
		StartsAt:  baseNow.Add(startsIn),
	}
}

func TestScheduleComputesFutureTiers(t *testing.T) {
	tests := []struct {
		name      string
		startsIn  time.Duration
		lead      LeadTime
		wantTiers []Tier
	}{
		{name: "all, 30h out", startsIn: 30 * time.Hour, lead: LeadAll, wantTiers: []Tier{Tier24h, Tier12h, Tier6h, Tier1h}},
		{name: "all, 2h out", startsIn: 2 * time.Hour, lead: LeadAll, wantTiers: []Tier{Tier1h}},
		{name: "all, 30min out", startsIn: 30 * time.Minute, lead: LeadAll, wantTiers: nil},
		{name: "single 12h tier", startsIn: 30 * time.Hour, lead: Lead12h, wantTiers: []Tier{Tier12h}},
		{name: "exactly at the 1h instant", startsIn: time.Hour, lead: LeadAll, wantTiers: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			p := DefaultPreferences("user-1", "UTC")
			p.LeadTime = tt.lead
			if _, err := h.prefs.Update("user-1", p); err != nil {
				t.Fatalf("Update: %v", err)
			}
			if _, err := h.sched.Schedule(context.Background(), session("s1", tt.startsIn)); err != nil {
				t.Fatalf("Schedule: %v", err)
			}
			got := h.sched.Pending("")
			if len(got) != len(tt.wantTiers) {
				t.Fatalf("pending: got %d entries, want %d", len(got), len(tt.wantTiers))
			}
			for i, p := range got {
				if p.Tier != tt.wantTiers[i] {
					t.Errorf("entry %d: got tier %s, want %s", i, p.Tier, tt.wantTiers[i])
				}
				if want := p.Session.StartsAt.Add(-p.Tier.Lead()); !p.FireAt.Equal(want) {
					t.Errorf("entry %d: fire at %v, want %v", i, p.FireAt, want)
				}
			}
		})
	}
}

func TestScheduleSendsConfirmation(t *testing.T) {
	h := newHarness(t)
	if _, err := h.sched.Schedule(context.Background(), session("s1", 30*time.Hour)); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if len(h.mailer.sent) != 1 {
		t.Fatalf("emails: got %d, want 1 confirmation", len(h.mailer.sent))
	}
	if !strings.Contains(h.mailer.sent[0].Subject, "confirmée") || h.mailer.sent[0].To != "founder@example.com" {
		t.Errorf("confirmation: got %+v", h.mailer.sent[0])
	}

	h2 := newHarness(t)
	p := DefaultPreferences("user-1", "UTC")
	p.EmailEnabled = false
	if _, err := h2.prefs.Update("user-1", p); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := h2.sched.Schedule(context.Background(), session("s1", 30*time.Hour)); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if len(h2.mailer.sent) != 0 {
		t.Errorf("email disabled: got %d emails", len(h2.mailer.sent))
	}
}

func TestScheduleRejectsIncompleteSession(t *testing.T) {
	h := newHarness(t)
	s := session("", time.Hour)
	if _, err := h.sched.Schedule(context.Background(), s); err == nil {
		t.Error("missing session id accepted")
	}
	s = session("s1", 0)
	s.StartsAt = time.Time{}
	if _, err := h.sched.Schedule(context.Background(), s); err == nil {
		t.Error("missing start time accepted")
	}
}

func TestCancelOnlyTouchesMatchingSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, id := range []string{"s1", "s2"} {
		if _, err := h.sched.Schedule(ctx, session(id, 30*time.Hour)); err != nil {
			t.Fatalf("Schedule %s: %v", id, err)
		}
	}
	if n := h.sched.Cancel("s1"); n != 4 {
		t.Errorf("cancelled: got %d, want 4", n)
	}
	if got := h.sched.Pending("s1"); len(got) != 0 {
		t.Errorf("s1 still has %d entries", len(got))
	}
	if got := h.sched.Pending("s2"); len(got) != 4 {
		t.Errorf("s2: got %d entries, want 4", len(got))
	}
	if n := h.sched.Cancel("unknown"); n != 0 {
		t.Errorf("unknown session: cancelled %d", n)
	}
}

func TestRescheduleReplacesEntries(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.sched.Schedule(ctx, session("s1", 30*time.Hour)); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if _, err := h.sched.Reschedule(ctx, session("s1", 3*time.Hour)); err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	got := h.sched.Pending("s1")
	if len(got) != 1 || got[0].Tier != Tier1h {
		t.Fatalf("after reschedule: got %+v", got)
	}
	if want := baseNow.Add(2 * time.Hour); !got[0].FireAt.Equal(want) {
		t.Errorf("fire at: got %v, want %v", got[0].FireAt, want)
	}
}

func TestTickDispatchesByChannelEligibility(t *testing.T) {
	h := newHarness(t)
	if _, err := h.sched.Schedule(context.Background(), session("s1", 30*time.Hour)); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	h.mailer.sent = nil

	h.clock.Set(baseNow.Add(29*time.Hour + time.Minute))
	h.sched.Tick(context.Background())

	if got := len(h.mailer.sent); got != 3 {
		t.Errorf("emails: got %d, want 3 (24h, 12h, 6h)", got)
	}
	var pushed []Tier
	for _, c := range h.pusher.calls {
		pushed = append(pushed, c.n.Tier)
		if c.userID != "user-1" {
			t.Errorf("push recipient: got %q", c.userID)
		}
	}
	if len(pushed) != 2 {
		t.Errorf("pushes: got %v, want 6h and 1h", pushed)
	}
	for _, tier := range pushed {
		if tier != Tier6h && tier != Tier1h {
			t.Errorf("push for tier %s", tier)
		}
	}
	if n := len(h.sched.Pending("")); n != 0 {
		t.Errorf("pending after dispatch: %d", n)
	}
}

func TestTickLeavesFutureEntries(t *testing.T) {
	h := newHarness(t)
	if _, err := h.sched.Schedule(context.Background(), session("s1", 30*time.Hour)); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	h.clock.Set(baseNow.Add(6 * time.Hour))
	h.sched.Tick(context.Background())
	got := h.sched.Pending("s1")
	if len(got) != 3 || got[0].Tier != Tier12h {
		t.Errorf("after first reminder: got %d entries, first %v", len(got), got)
	}
}

func TestTickRetriesFailedChannelOnly(t *testing.T) {
	h := newHarness(t)
	p := DefaultPreferences("user-1", "UTC")
	p.LeadTime = Lead6h
	if _, err := h.prefs.Update("user-1", p); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := h.sched.Schedule(context.Background(), session("s1", 10*time.Hour)); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	h.mailer.sent = nil
	h.pusher.fails = 1

	h.clock.Set(baseNow.Add(4 * time.Hour))
	h.sched.Tick(context.Background())
	got := h.sched.Pending("s1")
	if len(got) != 1 || !got[0].EmailSent || got[0].PushSent {
		t.Fatalf("after failed push: %+v", got)
	}

	h.clock.Set(baseNow.Add(4*time.Hour + time.Minute))
	h.sched.Tick(context.Background())
	if n := len(h.sched.Pending("s1")); n != 0 {
		t.Errorf("pending after retry: %d", n)
	}
	if len(h.mailer.sent) != 1 {
		t.Errorf("emails: got %d, want 1 (no resend)", len(h.mailer.sent))
	}
	if len(h.pusher.calls) != 1 {
		t.Errorf("pushes: got %d, want 1", len(h.pusher.calls))
	}
}

func TestTickDefersDuringQuietHours(t *testing.T) {
	h := newHarness(t)
	p := DefaultPreferences("user-1", "UTC")
	p.LeadTime = Lead1h
	if _, err := h.prefs.Update("user-1", p); err != nil {
		t.Fatalf("Update: %v", err)
	}
	// Session at 00:30 next day; the 1h reminder is due at 23:30.
	start := time.Date(2026, 3, 11, 0, 30, 0, 0, time.UTC)
	s := session("s1", 0)
	s.StartsAt = start
	if _, err := h.sched.Schedule(context.Background(), s); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	h.clock.Set(time.Date(2026, 3, 10, 23, 31, 0, 0, time.UTC))
	h.sched.Tick(context.Background())
	if len(h.pusher.calls) != 0 {
		t.Fatalf("pushed during quiet hours")
	}
	got := h.sched.Pending("s1")
	if len(got) != 1 {
		t.Fatalf("entry dropped during quiet hours")
	}
	if want := time.Date(2026, 3, 11, 8, 0, 0, 0, time.UTC); !got[0].FireAt.Equal(want) {
		t.Errorf("deferred to %v, want %v", got[0].FireAt, want)
	}

	h.clock.Set(time.Date(2026, 3, 11, 8, 1, 0, 0, time.UTC))
	h.sched.Tick(context.Background())
	if len(h.pusher.calls) != 1 {
		t.Errorf("pushes after quiet hours: got %d, want 1", len(h.pusher.calls))
	}
	if n := len(h.sched.Pending("s1")); n != 0 {
		t.Errorf("pending after dispatch: %d", n)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	sched := NewScheduler(h.prefs, h.mailer, h.pusher, WithTick(10*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
