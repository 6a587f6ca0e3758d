package progress

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/freshstart/freshstart/internal/store/tabular"
)

// Level buckets.
const (
	NewMaxLevel      = 4 // levels 1..4 are new
	FamiliarMaxLevel = 9 // levels 5..9 are familiar; 10+ are known
)

// RetentionWindow is the number of most recent reviews considered.
const RetentionWindow = 200

// Buckets counts items by level.
type Buckets struct {
	Remaining int `json:"remaining" yaml:"remaining"`
	New       int `json:"new" yaml:"new"`
	Familiar  int `json:"familiar" yaml:"familiar"`
	Known     int `json:"known" yaml:"known"`
}

// Learned is the number of items past level 0.
func (b Buckets) Learned() int {
	return b.New + b.Familiar + b.Known
}

// CountBuckets groups rows by level.
func CountBuckets(rows []tabular.Progress) Buckets {
	var b Buckets
	for _, p := range rows {
		switch {
		case p.Level <= 0:
			b.Remaining++
		case p.Level <= NewMaxLevel:
			b.New++
		case p.Level <= FamiliarMaxLevel:
			b.Familiar++
		default:
			b.Known++
		}
	}
	return b
}

// StudyTime sums event durations, each capped at limit.
func StudyTime(events []tabular.Event, limit time.Duration) time.Duration {
	var total time.Duration
	for _, ev := range events {
		d := time.Duration(ev.Duration) * time.Second
		total += min(d, limit)
	}
	return total
}

// FormatStudyTime renders a duration as "1h 5m". Zero renders as "".
func FormatStudyTime(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	minutes := int(d / time.Minute)
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}

// Retention returns the rounded mean score of the last RetentionWindow
// review events as a percentage. Non-numeric results score 0. It reports
// false when there are no reviews.
func Retention(events []tabular.Event) (int, bool) {
	var scores []float64
	for _, ev := range events {
		if !strings.EqualFold(string(ev.Action), string(tabular.ActionReview)) {
			continue
		}
		f, ok := ev.Score()
		if !ok || math.IsNaN(f) {
			f = 0
		}
		scores = append(scores, f)
	}
	if len(scores) == 0 {
		return 0, false
	}
	if len(scores) > RetentionWindow {
		scores = scores[len(scores)-RetentionWindow:]
	}
	var sum float64
	for _, f := range scores {
		sum += f
	}
	return int(math.Round(sum / float64(len(scores)) * 100)), true
}

// LearnsRemaining is the tier cap less the items learned, never negative.
func LearnsRemaining(licence string, learned int) (int, error) {
	ceiling, err := TierCap(licence)
	if err != nil {
		return 0, err
	}
	return max(ceiling-learned, 0), nil
}

// Stats is the progress summary shown by the status command and the
// dashboard.
type Stats struct {
	Buckets
	SprintDay       int    `json:"sprintDay,omitempty" yaml:"sprintDay,omitempty"`
	LearnsRemaining int    `json:"learnsRemaining" yaml:"learnsRemaining"`
	DailyCap        int    `json:"dailyCap,omitempty" yaml:"dailyCap,omitempty"`
	DueToday        int    `json:"dueToday" yaml:"dueToday"`
	Improves        int    `json:"improves" yaml:"improves"`
	Events          int    `json:"events" yaml:"events"`
	StudyTime       string `json:"studyTime,omitempty" yaml:"studyTime,omitempty"`
	Retention       *int   `json:"retention,omitempty" yaml:"retention,omitempty"`
}

// Stats computes the summary from the cache. sess may be nil; without a
// sprint day DailyCap and DueToday are left at zero.
func (e *Engine) Stats(sess *Session) (*Stats, error) {
	rows, err := e.Progress()
	if err != nil {
		return nil, err
	}
	events, err := e.Events()
	if err != nil {
		return nil, err
	}
	improves, err := e.Improves()
	if err != nil {
		return nil, err
	}
	settings, err := e.Settings()
	if err != nil {
		return nil, err
	}

	st := &Stats{
		Buckets:   CountBuckets(rows),
		Improves:  len(improves),
		Events:    len(events),
		StudyTime: FormatStudyTime(StudyTime(events, e.opts.DurationCap)),
	}
	if r, ok := Retention(events); ok {
		st.Retention = &r
	}

	licence := settings[KeyLicence]
	remaining, err := LearnsRemaining(licence, st.Learned())
	if err != nil {
		e.logger.Printf("Invalid licence, using %s: %v", DefaultTier, err)
		licence = ""
		remaining, _ = LearnsRemaining(licence, st.Learned())
	}
	st.LearnsRemaining = remaining

	if sess != nil && sess.HasSprintDay {
		st.SprintDay = sess.SprintDay
		st.DueToday = len(SelectReviewDue(rows, sess.SprintDay))
		st.DailyCap, _ = DailyLearnCap(licence, sess.SprintDay, e.opts.PerDayRate)
	}
	return st, nil
}

// DayActivity is the event activity of one sprint day.
type DayActivity struct {
	SprintDay int           `json:"sprintDay" yaml:"sprintDay"`
	Events    int           `json:"events" yaml:"events"`
	Reviews   int           `json:"reviews" yaml:"reviews"`
	Learns    int           `json:"learns" yaml:"learns"`
	Time      time.Duration `json:"time" yaml:"time"`
}

// Between returns per-day activity for sprint days in [from, to], in day
// order. Days without events are included with zero counts.
func Between(events []tabular.Event, from, to int, limit time.Duration) []DayActivity {
	if to < from {
		return nil
	}
	days := make([]DayActivity, to-from+1)
	for i := range days {
		days[i].SprintDay = from + i
	}
	for _, ev := range events {
		if ev.SprintDay < from || ev.SprintDay > to {
			continue
		}
		d := &days[ev.SprintDay-from]
		d.Events++
		switch ev.Action {
		case tabular.ActionReview:
			d.Reviews++
		case tabular.ActionLearn:
			d.Learns++
		}
		d.Time += min(time.Duration(ev.Duration)*time.Second, limit)
	}
	return days
}

// Activity is Between over the cached event log, with study time capped
// per event like StudyTime.
func (e *Engine) Activity(from, to int) ([]DayActivity, error) {
	events, err := e.Events()
	if err != nil {
		return nil, err
	}
	return Between(events, from, to, e.opts.DurationCap), nil
}
