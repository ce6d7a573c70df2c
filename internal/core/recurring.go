package core

// recurring.go materializes concrete instances from recurring templates.
//
// For each template the cursor starts at LastMaterializedAt, or the
// template's own date if nothing was materialized yet. Occurrences are
// generated by advancing the cursor one period at a time while the next
// occurrence is not after now and not after the end date. Each template is
// committed on its own: the new instances and the moved cursor are saved
// together, and a failure on one template does not stop the others.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ErrMaterializerBusy is returned by RunOnce while another pass is running.
var ErrMaterializerBusy = errors.New("recurring materialization already running")

// Advance returns the occurrence one period after t. Month and year steps
// keep the day of month, clamped to the last day of the target month, so
// Jan 31 advances to Feb 29 in a leap year. ok is false for FrequencyNone
// and unknown frequencies.
func Advance(t time.Time, freq Frequency) (next time.Time, ok bool) {
	switch freq {
	case FrequencyDaily:
		return t.AddDate(0, 0, 1), true
	case FrequencyWeekly:
		return t.AddDate(0, 0, 7), true
	case FrequencyMonthly:
		return addMonthsClamped(t, 1), true
	case FrequencyYearly:
		return addMonthsClamped(t, 12), true
	default:
		return t, false
	}
}

func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first); d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

func daysIn(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}

// Cursor is the last materialized occurrence of tpl, or its own date when
// nothing was materialized yet.
func Cursor(tpl Transaction) time.Time {
	if tpl.Recurrence.LastMaterializedAt != nil {
		return *tpl.Recurrence.LastMaterializedAt
	}
	return tpl.Date
}

// DueOccurrences lists the occurrences of tpl that fall due by now, in
// order, along with the cursor after the last of them. With nothing due the
// cursor is the starting point unchanged.
func DueOccurrences(tpl Transaction, now time.Time) (due []time.Time, cursor time.Time) {
	cursor = Cursor(tpl)
	end := tpl.Recurrence.EndDate

	for {
		next, ok := Advance(cursor, tpl.Recurrence.Frequency)
		if !ok || next.After(now) || (end != nil && next.After(*end)) {
			return due, cursor
		}
		due = append(due, next)
		cursor = next
	}
}

// NewInstance builds the concrete transaction for one occurrence of tpl.
func NewInstance(tpl Transaction, occurrence, createdAt time.Time) Transaction {
	parent := tpl.ID
	return Transaction{
		ID:                  uuid.New(),
		AccountID:           tpl.AccountID,
		Amount:              tpl.Amount,
		Currency:            tpl.Currency,
		Name:                tpl.Name,
		Description:         tpl.Description,
		Date:                occurrence.UTC(),
		Recurrence:          Recurrence{Frequency: FrequencyNone},
		IsRecurringInstance: true,
		ParentTemplateID:    &parent,
		CreatedAt:           createdAt,
	}
}

// MaterializeSummary reports one RunOnce pass.
type MaterializeSummary struct {
	Templates int `json:"templates"`
	Created   int `json:"created"`
	Failed    int `json:"failed"`
}

// Materializer walks recurring templates and creates their due instances.
type Materializer struct {
	store   TransactionStore
	clock   Clock
	logger  *slog.Logger
	running atomic.Bool
}

// NewMaterializer uses SystemClock when clock is nil and slog.Default when
// logger is nil.
func NewMaterializer(store TransactionStore, clock Clock, logger *slog.Logger) *Materializer {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Materializer{store: store, clock: clock, logger: logger}
}

// RunOnce processes every active template sequentially. Per-template
// failures are logged and counted; the returned error is non-nil only when
// templates could not be listed, the pass was cancelled, or another pass is
// already running.
func (m *Materializer) RunOnce(ctx context.Context) (MaterializeSummary, error) {
	if !m.running.CompareAndSwap(false, true) {
		return MaterializeSummary{}, ErrMaterializerBusy
	}
	defer m.running.Store(false)

	var summary MaterializeSummary
	now := m.clock.Now()

	templates, err := m.store.ListActiveTemplates(ctx, now)
	if err != nil {
		return summary, fmt.Errorf("list recurring templates: %w", err)
	}

	for _, tpl := range templates {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if !tpl.IsRecurring || tpl.Recurrence.Frequency == FrequencyNone {
			continue
		}

		summary.Templates++
		created, err := m.MaterializeTemplate(ctx, tpl, now)
		if err != nil {
			summary.Failed++
			m.logger.Error("materialize recurring template failed",
				"template_id", tpl.ID,
				"error", err,
			)
			continue
		}
		summary.Created += created
	}

	return summary, nil
}

// Running reports whether a pass is in progress.
func (m *Materializer) Running() bool {
	return m.running.Load()
}

// MaterializeTemplate creates the instances of tpl due by now that do not
// already exist and advances its cursor, saving both in one batch. It
// returns how many instances were created.
func (m *Materializer) MaterializeTemplate(ctx context.Context, tpl Transaction, now time.Time) (int, error) {
	due, cursor := DueOccurrences(tpl, now)

	var created []Transaction
	if len(due) > 0 {
		existing, err := m.store.ListInstances(ctx, tpl.ID)
		if err != nil {
			return 0, fmt.Errorf("list instances: %w", err)
		}
		have := make(map[time.Time]struct{}, len(existing))
		for _, inst := range existing {
			have[DateOnly(inst.Date)] = struct{}{}
		}

		for _, occ := range due {
			if _, ok := have[DateOnly(occ)]; ok {
				continue
			}
			created = append(created, NewInstance(tpl, occ, now))
		}
	}

	tpl.Recurrence.LastMaterializedAt = &cursor
	if err := m.store.SaveBatch(ctx, []Transaction{tpl}, created); err != nil {
		return 0, fmt.Errorf("save template %s: %w", tpl.ID, err)
	}

	if len(created) > 0 {
		m.logger.Info("materialized recurring instances",
			"template_id", tpl.ID,
			"created", len(created),
			"cursor", cursor.Format(time.DateOnly),
		)
	}
	return len(created), nil
}
