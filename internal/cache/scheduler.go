package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"platbook/internal/cache/models"
	id "platbook/pkg/domain"
	"platbook/pkg/requestcontext"
)

// scheduleRule fires calendar-driven refreshes for fields whose source
// updates on a known cycle. due returns a period label and whether the rule
// is active for t; the rule fires once per label.
type scheduleRule struct {
	name   string
	fields []id.Field
	due    func(t time.Time) (string, bool)
}

// defaultRules covers the sources with fixed calendars. Counties reassess
// taxes at the start of the year, environmental screens update quarterly and
// distance data (comps infrastructure) twice a year. Census demographics have
// no fixed date; operators inject a scheduled_tick event when a release
// lands.
func defaultRules() []scheduleRule {
	return []scheduleRule{
		{
			name:   "tax-assessment-annual",
			fields: []id.Field{id.FieldTaxAssessment},
			due: func(t time.Time) (string, bool) {
				return fmt.Sprintf("%d", t.Year()), t.Month() == time.January
			},
		},
		{
			name:   "environmental-quarterly",
			fields: []id.Field{id.FieldEnvironmental},
			due: func(t time.Time) (string, bool) {
				q := (int(t.Month())-1)/3 + 1
				label := fmt.Sprintf("%d-Q%d", t.Year(), q)
				firstMonth := time.Month((q-1)*3 + 1)
				return label, t.Month() == firstMonth
			},
		},
		{
			name:   "distances-semiannual",
			fields: []id.Field{id.FieldDistances},
			due: func(t time.Time) (string, bool) {
				if t.Month() < time.July {
					return fmt.Sprintf("%d-H1", t.Year()), t.Month() == time.January
				}
				return fmt.Sprintf("%d-H2", t.Year()), t.Month() == time.July
			},
		},
	}
}

// Scheduler walks the refresh calendar and injects scheduled_tick events for
// every cached property when a rule's period begins. Firing state is held in
// memory; a restart inside an active month re-marks entries stale, which is
// harmless because staleness is idempotent and in-flight markers collapse
// duplicate dispatches.
type Scheduler struct {
	manager   *Manager
	interval  time.Duration
	logger    *slog.Logger
	rules     []scheduleRule
	lastFired map[string]string
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerLogger sets the logger.
func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSchedulerInterval sets how often the calendar is checked.
func WithSchedulerInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// NewScheduler constructs a scheduler over the default calendar.
func NewScheduler(manager *Manager, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		manager:   manager,
		interval:  time.Hour,
		logger:    slog.Default(),
		rules:     defaultRules(),
		lastFired: make(map[string]string),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Run checks the calendar on the configured interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick fires every rule whose period has begun since the last firing.
func (s *Scheduler) Tick(ctx context.Context) {
	now := requestcontext.Now(ctx)
	for _, rule := range s.rules {
		label, active := rule.due(now)
		if !active || s.lastFired[rule.name] == label {
			continue
		}
		if err := s.fire(ctx, rule, now); err != nil {
			s.logger.ErrorContext(ctx, "scheduled refresh failed",
				slog.String("rule", rule.name),
				slog.Any("error", err))
			continue
		}
		s.lastFired[rule.name] = label
		s.logger.InfoContext(ctx, "scheduled refresh fired",
			slog.String("rule", rule.name),
			slog.String("period", label))
	}
}

// fire injects one scheduled_tick event per cached property scoped to the
// rule's fields. The manager's tier legality and in-flight markers apply as
// they would to any external event.
func (s *Scheduler) fire(ctx context.Context, rule scheduleRule, now time.Time) error {
	properties, err := s.manager.entries.ListProperties(ctx)
	if err != nil {
		return fmt.Errorf("list cached properties: %w", err)
	}
	for _, propertyID := range properties {
		ev := models.InvalidationEvent{
			EventID:    id.NewEventID(),
			Kind:       models.EventScheduledTick,
			PropertyID: propertyID,
			Fields:     rule.fields,
			At:         now,
		}
		if _, err := s.manager.HandleEvent(ctx, ev); err != nil {
			return fmt.Errorf("property %s: %w", propertyID, err)
		}
	}
	return nil
}
