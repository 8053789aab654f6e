package validation

import (
	"fmt"

	"github.com/bluebridge/termsheet-ingest/backend/model"
)

// Rule names
const (
	RuleISINFormat          = "isin_format"
	RuleISINLuhn            = "isin_luhn"
	RuleIssueBeforeMaturity = "issue_before_maturity"
	RuleMinUnderlyings      = "min_underlyings"
	RuleBarrierRange        = "barrier_range"
	RuleDuplicateISIN       = "duplicate_isin"
	RuleEventWithinLifetime = "event_within_lifetime"
)

// Subject is one thing a rule inspects: the document as a whole or one of its events.
type Subject struct {
	Field string
	Doc   *model.TermsheetData
	Event *model.Event
}

// Facts are gathered once per validation pass, before any rule runs.
type Facts struct {
	Duplicate bool
}

// Rule describes a single business check. The engine selects subjects, evaluates
// Violated for each and emits one issue per violating subject.
type Rule struct {
	Name     string
	Severity model.Severity
	Select   func(doc *model.TermsheetData) []Subject
	Violated func(s Subject, facts Facts) bool
	Message  func(s Subject) string
}

// DefaultRules returns the termsheet rule table in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:     RuleISINFormat,
			Severity: model.SeverityError,
			Select:   field("product_isin"),
			Violated: func(s Subject, _ Facts) bool {
				return !IsISINFormat(s.Doc.Product.ISIN)
			},
			Message: func(s Subject) string {
				return fmt.Sprintf("ISIN '%s' does not match expected format (2 letters + 9 alphanumeric + 1 digit)", s.Doc.Product.ISIN)
			},
		},
		{
			Name:     RuleISINLuhn,
			Severity: model.SeverityError,
			Select:   field("product_isin"),
			Violated: func(s Subject, _ Facts) bool {
				isin := s.Doc.Product.ISIN
				return IsISINFormat(isin) && !IsISINChecksum(isin)
			},
			Message: func(s Subject) string {
				return fmt.Sprintf("ISIN '%s' fails Luhn checksum validation", s.Doc.Product.ISIN)
			},
		},
		{
			Name:     RuleIssueBeforeMaturity,
			Severity: model.SeverityError,
			Select:   field("issue_date"),
			Violated: func(s Subject, _ Facts) bool {
				p := s.Doc.Product
				return !p.IssueDate.Before(p.Maturity.Time)
			},
			Message: func(s Subject) string {
				p := s.Doc.Product
				return fmt.Sprintf("Issue date (%s) must be before maturity (%s)", p.IssueDate, p.Maturity)
			},
		},
		{
			Name:     RuleMinUnderlyings,
			Severity: model.SeverityError,
			Select:   field("underlyings"),
			Violated: func(s Subject, _ Facts) bool {
				return len(s.Doc.Underlyings) < 1
			},
			Message: func(Subject) string {
				return "At least one underlying is required"
			},
		},
		{
			Name:     RuleBarrierRange,
			Severity: model.SeverityError,
			Select:   barrierEvents,
			Violated: func(s Subject, _ Facts) bool {
				level := *s.Event.LevelPct
				return level < 0 || level > 100
			},
			Message: func(s Subject) string {
				return fmt.Sprintf("Event level %g%% is outside 0-100 range", *s.Event.LevelPct)
			},
		},
		{
			Name:     RuleDuplicateISIN,
			Severity: model.SeverityError,
			Select:   field("product_isin"),
			Violated: func(_ Subject, facts Facts) bool {
				return facts.Duplicate
			},
			Message: func(s Subject) string {
				return fmt.Sprintf("Product with ISIN '%s' already exists in the database", s.Doc.Product.ISIN)
			},
		},
		{
			Name:     RuleEventWithinLifetime,
			Severity: model.SeverityWarning,
			Select:   eventDates,
			Violated: func(s Subject, _ Facts) bool {
				p := s.Doc.Product
				return s.Event.Date.Before(p.IssueDate.Time) || s.Event.Date.After(p.Maturity.Time)
			},
			Message: func(s Subject) string {
				p := s.Doc.Product
				return fmt.Sprintf("Event date %s is outside product lifetime (%s to %s)", s.Event.Date, p.IssueDate, p.Maturity)
			},
		},
	}
}

func field(name string) func(*model.TermsheetData) []Subject {
	return func(doc *model.TermsheetData) []Subject {
		return []Subject{{Field: name, Doc: doc}}
	}
}

// barrierEvents selects coupon and knock-in events that carry a level.
func barrierEvents(doc *model.TermsheetData) []Subject {
	var out []Subject
	for i := range doc.Events {
		e := &doc.Events[i]
		if e.Type != model.EventCoupon && e.Type != model.EventKnockIn {
			continue
		}
		if e.LevelPct == nil {
			continue
		}
		out = append(out, Subject{Field: fmt.Sprintf("events[%d].event_level_pct", i), Doc: doc, Event: e})
	}
	return out
}

func eventDates(doc *model.TermsheetData) []Subject {
	out := make([]Subject, 0, len(doc.Events))
	for i := range doc.Events {
		out = append(out, Subject{Field: fmt.Sprintf("events[%d].event_date", i), Doc: doc, Event: &doc.Events[i]})
	}
	return out
}
