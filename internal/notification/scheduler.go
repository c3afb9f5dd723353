package notification

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/incubator-platform/support-chat/internal/errs"
)

// Tier is a reminder lead time before a session starts.
type Tier string

const (
	Tier24h Tier = "24h"
	Tier12h Tier = "12h"
	Tier6h  Tier = "6h"
	Tier1h  Tier = "1h"
)

func (t Tier) Lead() time.Duration {
	switch t {
	case Tier24h:
		return 24 * time.Hour
	case Tier12h:
		return 12 * time.Hour
	case Tier6h:
		return 6 * time.Hour
	case Tier1h:
		return time.Hour
	}
	return 0
}

// Email reports whether the tier is delivered by email (24h, 12h, 6h).
func (t Tier) Email() bool { return t == Tier24h || t == Tier12h || t == Tier6h }

// Push reports whether the tier is delivered by push (6h, 1h).
func (t Tier) Push() bool { return t == Tier6h || t == Tier1h }

// Session is a booked coaching session as seen by reminders.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	UserEmail string    `json:"user_email"`
	CoachID   string    `json:"coach_id"`
	CoachName string    `json:"coach_name"`
	Topic     string    `json:"topic" binding:"required"`
	StartsAt  time.Time `json:"starts_at" binding:"required"`
	Location  string    `json:"location"`
}

// Pending is one reminder waiting for its fire time. FireAt moves forward
// when quiet hours defer it; the entry keeps its original key.
type Pending struct {
	SessionID string      `json:"session_id"`
	Tier      Tier        `json:"tier"`
	FireAt    time.Time   `json:"fire_at"`
	Session   Session     `json:"session"`
	Prefs     Preferences `json:"preferences"`
	EmailSent bool        `json:"email_sent"`
	PushSent  bool        `json:"push_sent"`
}

type pendingKey struct {
	sessionID string
	at        int64
}

type SchedulerOption func(*Scheduler)

func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

func WithSchedulerLogger(l *zap.Logger) SchedulerOption {
	return func(s *Scheduler) { s.log = l }
}

func WithTick(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.tick = d }
}

// Scheduler holds session reminders in memory and dispatches them from Run.
// Pending reminders do not survive a restart.
type Scheduler struct {
	mu      sync.Mutex
	pending map[pendingKey]*Pending

	prefs  *PreferenceStore
	mailer Mailer
	pusher Pusher
	now    func() time.Time
	tick   time.Duration
	log    *zap.Logger
}

func NewScheduler(prefs *PreferenceStore, mailer Mailer, pusher Pusher, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		pending: make(map[pendingKey]*Pending),
		prefs:   prefs,
		mailer:  mailer,
		pusher:  pusher,
		now:     time.Now,
		tick:    time.Minute,
		log:     zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Scheduler) Preferences() *PreferenceStore { return s.prefs }

// Schedule sends the booking confirmation and queues one reminder per
// selected tier whose instant is still ahead.
func (s *Scheduler) Schedule(ctx context.Context, sess Session) ([]Pending, error) {
	if sess.ID == "" || sess.UserID == "" {
		return nil, errs.Invalid("session id and user id are required")
	}
	if sess.StartsAt.IsZero() {
		return nil, errs.Invalid("session start time is required")
	}
	prefs := s.prefs.Get(sess.UserID)

	if prefs.EmailEnabled && sess.UserEmail != "" {
		if err := s.sendEmail(ctx, sess, confirmationEmail(sess, prefs.Location())); err != nil {
			s.log.Warn("confirmation email failed", zap.String("session_id", sess.ID), zap.Error(err))
		}
	}

	now := s.now()
	var out []Pending
	s.mu.Lock()
	for _, tier := range prefs.LeadTime.Tiers() {
		at := sess.StartsAt.Add(-tier.Lead())
		if !at.After(now) {
			continue
		}
		p := &Pending{SessionID: sess.ID, Tier: tier, FireAt: at, Session: sess, Prefs: prefs}
		s.pending[pendingKey{sessionID: sess.ID, at: at.UnixNano()}] = p
		out = append(out, *p)
	}
	s.mu.Unlock()

	s.log.Info("session reminders scheduled",
		zap.String("session_id", sess.ID), zap.String("user_id", sess.UserID), zap.Int("count", len(out)))
	return out, nil
}

// Cancel drops every pending reminder of the session and returns how many
// were removed.
func (s *Scheduler) Cancel(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.pending {
		if k.sessionID == sessionID {
			delete(s.pending, k)
			n++
		}
	}
	return n
}

// Reschedule cancels the session's reminders and schedules it again.
func (s *Scheduler) Reschedule(ctx context.Context, sess Session) ([]Pending, error) {
	s.Cancel(sess.ID)
	return s.Schedule(ctx, sess)
}

// Pending lists queued reminders ordered by fire time. An empty sessionID
// lists all of them.
func (s *Scheduler) Pending(sessionID string) []Pending {
	s.mu.Lock()
	out := make([]Pending, 0, len(s.pending))
	for k, p := range s.pending {
		if sessionID == "" || k.sessionID == sessionID {
			out = append(out, *p)
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].FireAt.Equal(out[j].FireAt) {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].FireAt.Before(out[j].FireAt)
	})
	return out
}

// Run ticks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	t := time.NewTicker(s.tick)
	defer t.Stop()
	s.log.Info("notification scheduler started", zap.Duration("tick", s.tick))
	for {
		select {
		case <-ctx.Done():
			s.log.Info("notification scheduler stopped")
			return nil
		case <-t.C:
			s.Tick(ctx)
		}
	}
}

type dueEntry struct {
	key pendingKey
	ref *Pending
	p   Pending
}

// Tick dispatches every due reminder. Reminders due inside the
// recipient's quiet hours are moved to the end of the window instead.
// Failed channels stay pending for the next tick.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now()

	var due []dueEntry
	s.mu.Lock()
	for k, p := range s.pending {
		if p.FireAt.After(now) {
			continue
		}
		loc := p.Prefs.Location()
		if InQuietHours(now, p.Prefs.QuietHoursStart, p.Prefs.QuietHoursEnd, loc) {
			p.FireAt = quietHoursEnd(now, p.Prefs.QuietHoursEnd, loc)
			s.log.Debug("reminder deferred by quiet hours",
				zap.String("session_id", p.SessionID), zap.String("tier", string(p.Tier)), zap.Time("fire_at", p.FireAt))
			continue
		}
		due = append(due, dueEntry{key: k, ref: p, p: *p})
	}
	s.mu.Unlock()

	for i := range due {
		s.dispatch(ctx, &due[i].p)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range due {
		// Cancelled or rescheduled while dispatching.
		if cur, ok := s.pending[d.key]; !ok || cur != d.ref {
			continue
		}
		if d.p.done() {
			delete(s.pending, d.key)
			continue
		}
		d.ref.EmailSent = d.p.EmailSent
		d.ref.PushSent = d.p.PushSent
	}
}

func (p *Pending) wantsEmail() bool {
	return p.Prefs.EmailEnabled && p.Tier.Email() && p.Session.UserEmail != ""
}

func (p *Pending) wantsPush() bool { return p.Prefs.PushEnabled && p.Tier.Push() }

func (p *Pending) done() bool {
	return (!p.wantsEmail() || p.EmailSent) && (!p.wantsPush() || p.PushSent)
}

func (s *Scheduler) dispatch(ctx context.Context, p *Pending) {
	loc := p.Prefs.Location()
	if p.wantsEmail() && !p.EmailSent {
		if err := s.sendEmail(ctx, p.Session, reminderEmail(p.Session, p.Tier, loc)); err != nil {
			s.log.Warn("reminder email failed, will retry",
				zap.String("session_id", p.SessionID), zap.String("tier", string(p.Tier)), zap.Error(err))
		} else {
			p.EmailSent = true
		}
	}
	if p.wantsPush() && !p.PushSent {
		n := PushNotification{
			Title:     "Rappel de session",
			Body:      fmt.Sprintf("Votre session « %s » commence dans %s.", p.Session.Topic, tierLabel(p.Tier)),
			SessionID: p.SessionID,
			Tier:      p.Tier,
			StartsAt:  p.Session.StartsAt,
		}
		if err := s.pusher.Push(ctx, p.Session.UserID, n); err != nil {
			s.log.Warn("reminder push failed, will retry",
				zap.String("session_id", p.SessionID), zap.String("tier", string(p.Tier)), zap.Error(err))
		} else {
			p.PushSent = true
		}
	}
	if p.done() {
		s.log.Info("reminder sent", zap.String("session_id", p.SessionID), zap.String("tier", string(p.Tier)))
	}
}

func (s *Scheduler) sendEmail(ctx context.Context, sess Session, e Email) error {
	e.To = sess.UserEmail
	return s.mailer.Send(ctx, e)
}

func confirmationEmail(sess Session, loc *time.Location) Email {
	return Email{
		Subject: fmt.Sprintf("Session confirmée : %s", sess.Topic),
		Body:    sessionBody("Votre session est confirmée.", sess, loc),
	}
}

func reminderEmail(sess Session, tier Tier, loc *time.Location) Email {
	return Email{
		Subject: fmt.Sprintf("Rappel : « %s » dans %s", sess.Topic, tierLabel(tier)),
		Body:    sessionBody(fmt.Sprintf("Votre session commence dans %s.", tierLabel(tier)), sess, loc),
	}
}

func sessionBody(intro string, sess Session, loc *time.Location) string {
	body := fmt.Sprintf("Bonjour,\n\n%s\n\nSujet : %s\nDate : %s\n",
		intro, sess.Topic, sess.StartsAt.In(loc).Format("02/01/2006 15:04 MST"))
	if sess.CoachName != "" {
		body += fmt.Sprintf("Coach : %s\n", sess.CoachName)
	}
	if sess.Location != "" {
		body += fmt.Sprintf("Lieu : %s\n", sess.Location)
	}
	return body
}

func tierLabel(t Tier) string {
	switch t {
	case Tier1h:
		return "1 heure"
	default:
		return fmt.Sprintf("%d heures", int(t.Lead().Hours()))
	}
}
