package tabular

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/freshstart/freshstart/internal/store"
)

// ===== UserProgress =====

// Progress is one UserProgress row.
//
// Level 0 means the item was never learned and carries no next review day.
// A positive level implies NextReviewDay was set at the last promotion.
type Progress struct {
	ID            int
	NextReviewDay int
	Scheduled     bool // false when the NRD field is empty
	Level         int
}

// Record converts the row to its tabular form.
func (p Progress) Record() Record {
	nrd := ""
	if p.Scheduled {
		nrd = strconv.Itoa(p.NextReviewDay)
	}
	return Record{strconv.Itoa(p.ID), nrd, strconv.Itoa(p.Level)}
}

// ParseProgress converts a record. The id must be an integer; a
// non-numeric level reads as 0 and a non-numeric NRD as unscheduled.
func ParseProgress(rec Record, line int) (Progress, error) {
	id, err := strconv.Atoi(rec.Field(0))
	if err != nil {
		return Progress{}, &store.FormatError{
			Dataset: store.UserData,
			Line:    line,
			Reason:  fmt.Sprintf("invalid id %q", rec.Field(0)),
		}
	}

	p := Progress{ID: id, Level: atoiOr(rec.Field(2), 0)}
	if p.Level < 0 {
		p.Level = 0
	}
	if nrd, err := strconv.Atoi(rec.Field(1)); err == nil {
		p.NextReviewDay = nrd
		p.Scheduled = true
	}
	return p, nil
}

// DecodeProgress parses a UserProgress blob. Duplicate ids are a format
// error.
func DecodeProgress(text string) ([]Progress, error) {
	doc, err := Parse(text, ProgressSchema)
	if err != nil {
		return nil, err
	}
	return doc.Progress()
}

// Progress converts every record of a UserProgress document.
func (d *Document) Progress() ([]Progress, error) {
	recs := d.Records()
	lines := d.Lines()
	out := make([]Progress, 0, len(recs))
	seen := make(map[int]int, len(recs))
	for i, rec := range recs {
		p, err := ParseProgress(rec, lines[i])
		if err != nil {
			return nil, err
		}
		if first, dup := seen[p.ID]; dup {
			return nil, &store.FormatError{
				Dataset: store.UserData,
				Line:    lines[i],
				Reason:  fmt.Sprintf("duplicate id %d (first on line %d)", p.ID, first),
			}
		}
		seen[p.ID] = lines[i]
		out = append(out, p)
	}
	return out, nil
}

// EncodeProgress serializes UserProgress rows.
func EncodeProgress(rows []Progress) string {
	recs := make([]Record, len(rows))
	for i, p := range rows {
		recs[i] = p.Record()
	}
	return Encode(recs, ProgressSchema)
}

// SeedProgress returns a UserProgress blob with ids 1..n, all unlearned.
func SeedProgress(n int) string {
	rows := make([]Progress, n)
	for i := range rows {
		rows[i] = Progress{ID: i + 1}
	}
	return EncodeProgress(rows)
}

// ===== EventLog =====

// Action is the study mode an event was recorded in.
type Action string

const (
	ActionImprove     Action = "improve"
	ActionReview      Action = "review"
	ActionLearn       Action = "learn"
	ActionVerbs       Action = "verbs"
	ActionListening   Action = "listening"
	ActionComposition Action = "composition"
	ActionErrors      Action = "errors"
)

// Actions lists every valid action.
func Actions() []Action {
	return []Action{
		ActionImprove, ActionReview, ActionLearn, ActionVerbs,
		ActionListening, ActionComposition, ActionErrors,
	}
}

// ParseAction validates an action name, ignoring case.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range Actions() {
		if a == v {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// Event is one EventLog row.
type Event struct {
	ItemID        int
	Action        Action
	Result        string // numeric score or an enum label
	Duration      int    // seconds, >= 0
	SprintDay     int
	ActivePassive string
}

// Score returns the numeric result, if the result is numeric.
func (e Event) Score() (float64, bool) {
	f, err := strconv.ParseFloat(e.Result, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Record converts the event to its tabular form.
func (e Event) Record() Record {
	return Record{
		strconv.Itoa(e.ItemID),
		string(e.Action),
		e.Result,
		strconv.Itoa(e.Duration),
		strconv.Itoa(e.SprintDay),
		e.ActivePassive,
	}
}

// ParseEvent converts a record. Duration and sprint day read as 0 when
// empty or non-numeric; negative durations read as 0.
func ParseEvent(rec Record, line int) (Event, error) {
	id, err := strconv.Atoi(rec.Field(0))
	if err != nil {
		return Event{}, &store.FormatError{
			Dataset: store.Events,
			Line:    line,
			Reason:  fmt.Sprintf("invalid item id %q", rec.Field(0)),
		}
	}
	action, err := ParseAction(rec.Field(1))
	if err != nil {
		return Event{}, &store.FormatError{Dataset: store.Events, Line: line, Reason: err.Error()}
	}

	e := Event{
		ItemID:        id,
		Action:        action,
		Result:        rec.Field(2),
		Duration:      atoiOr(rec.Field(3), 0),
		SprintDay:     atoiOr(rec.Field(4), 0),
		ActivePassive: rec.Field(5),
	}
	if e.Duration < 0 {
		e.Duration = 0
	}
	return e, nil
}

// DecodeEvents parses an EventLog blob.
func DecodeEvents(text string) ([]Event, error) {
	doc, err := Parse(text, EventSchema)
	if err != nil {
		return nil, err
	}
	recs := doc.Records()
	lines := doc.Lines()
	out := make([]Event, 0, len(recs))
	for i, rec := range recs {
		e, err := ParseEvent(rec, lines[i])
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// EncodeEvents serializes EventLog rows.
func EncodeEvents(events []Event) string {
	recs := make([]Record, len(events))
	for i, e := range events {
		recs[i] = e.Record()
	}
	return Encode(recs, EventSchema)
}

// ===== ImprovementQueue =====

// DecodeImproves parses an ImprovementQueue blob into item ids.
func DecodeImproves(text string) ([]int, error) {
	doc, err := Parse(text, ImprovesSchema)
	if err != nil {
		return nil, err
	}
	recs := doc.Records()
	lines := doc.Lines()
	ids := make([]int, 0, len(recs))
	for i, rec := range recs {
		id, err := strconv.Atoi(rec.Field(0))
		if err != nil {
			return nil, &store.FormatError{
				Dataset: store.Improves,
				Line:    lines[i],
				Reason:  fmt.Sprintf("invalid id %q", rec.Field(0)),
			}
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// EncodeImproves serializes item ids.
func EncodeImproves(ids []int) string {
	recs := make([]Record, len(ids))
	for i, id := range ids {
		recs[i] = Record{strconv.Itoa(id)}
	}
	return Encode(recs, ImprovesSchema)
}

// ===== Settings =====

// DecodeSettings parses a Settings blob. A repeated key keeps its last
// value.
func DecodeSettings(text string) (map[string]string, error) {
	recs, err := Decode(text, SettingsSchema)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(recs))
	for _, rec := range recs {
		if rec.Field(0) == "" {
			continue
		}
		out[rec.Field(0)] = rec.Field(1)
	}
	return out, nil
}

// EncodeSettings serializes settings in the given key order; keys missing
// from order are appended sorted.
func EncodeSettings(values map[string]string, order []string) string {
	keys := orderedKeys(values, order)
	recs := make([]Record, 0, len(keys))
	for _, k := range keys {
		recs = append(recs, Record{k, values[k]})
	}
	return Encode(recs, SettingsSchema)
}

// ===== Curriculum =====

// Item is one Curriculum record.
type Item struct {
	ID       int
	Question string
	Answer   string
	Audio    string
	Info     string
	Clue     string
	Theme    string
	Subtype  string
	Level    string
	Seq      int
	Type     string
	Person   string
	Tense    string
	Comment  string
}

// Record converts the item to its tabular form.
func (it Item) Record() Record {
	seq := ""
	if it.Seq != 0 {
		seq = strconv.Itoa(it.Seq)
	}
	return Record{
		strconv.Itoa(it.ID), it.Question, it.Answer, it.Audio, it.Info,
		it.Clue, it.Theme, it.Subtype, it.Level, seq, it.Type, it.Person,
		it.Tense, it.Comment,
	}
}

// ParseItem converts a record.
func ParseItem(rec Record, line int) (Item, error) {
	id, err := strconv.Atoi(rec.Field(0))
	if err != nil {
		return Item{}, &store.FormatError{
			Dataset: store.Curriculum,
			Line:    line,
			Reason:  fmt.Sprintf("invalid id %q", rec.Field(0)),
		}
	}
	return Item{
		ID:       id,
		Question: rec.Field(1),
		Answer:   rec.Field(2),
		Audio:    rec.Field(3),
		Info:     rec.Field(4),
		Clue:     rec.Field(5),
		Theme:    rec.Field(6),
		Subtype:  rec.Field(7),
		Level:    rec.Field(8),
		Seq:      atoiOr(rec.Field(9), 0),
		Type:     rec.Field(10),
		Person:   rec.Field(11),
		Tense:    rec.Field(12),
		Comment:  rec.Field(13),
	}, nil
}

// DecodeCurriculum parses a Curriculum blob.
func DecodeCurriculum(text string) ([]Item, error) {
	doc, err := Parse(text, CurriculumSchema)
	if err != nil {
		return nil, err
	}
	recs := doc.Records()
	lines := doc.Lines()
	out := make([]Item, 0, len(recs))
	for i, rec := range recs {
		it, err := ParseItem(rec, lines[i])
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, nil
}

// EncodeCurriculum serializes curriculum items.
func EncodeCurriculum(items []Item) string {
	recs := make([]Record, len(items))
	for i, it := range items {
		recs[i] = it.Record()
	}
	return Encode(recs, CurriculumSchema)
}
