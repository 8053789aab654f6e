package model

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format for every date in a termsheet
const DateLayout = "2006-01-02"

// Date is a calendar day without time of day
type Date struct {
	time.Time
}

// NewDate builds a Date in UTC
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.Format(DateLayout) + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	// Models occasionally answer with a full timestamp
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// EventType is one of the fixed termsheet event kinds
type EventType string

const (
	EventStrike              EventType = "strike"
	EventCoupon              EventType = "coupon"
	EventAutoEarlyRedemption EventType = "auto_early_redemption"
	EventKnockIn             EventType = "knock_in"
)

// EventTypes lists the accepted event vocabulary
var EventTypes = []EventType{EventStrike, EventCoupon, EventAutoEarlyRedemption, EventKnockIn}

// Product is the header of a structured product termsheet
type Product struct {
	ISIN             string  `json:"product_isin"`
	SEDOL            *string `json:"sedol"`
	ShortDescription *string `json:"short_description"`
	Issuer           *string `json:"issuer"`
	IssueDate        Date    `json:"issue_date"`
	Currency         string  `json:"currency"`
	Maturity         Date    `json:"maturity"`
	ProductType      *string `json:"product_type"`
	WordDescription  *string `json:"word_description"`
}

// Underlying is a reference asset of the product
type Underlying struct {
	BBGCode      string   `json:"bbg_code"`
	Weight       *float64 `json:"weight"`
	InitialPrice float64  `json:"initial_price"`
}

// Event is a scheduled observation (strike, coupon, autocall, knock-in)
type Event struct {
	Type        EventType `json:"event_type"`
	LevelPct    *float64  `json:"event_level_pct"`
	StrikePct   *float64  `json:"event_strike_pct"`
	Date        Date      `json:"event_date"`
	Amount      *float64  `json:"event_amount"`
	PaymentDate *Date     `json:"event_payment_date"`
}

// TermsheetData is the complete structured extraction of one termsheet
type TermsheetData struct {
	Product     Product      `json:"product"`
	Underlyings []Underlying `json:"underlyings"`
	Events      []Event      `json:"events"`
}
