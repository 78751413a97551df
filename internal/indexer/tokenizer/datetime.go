package tokenizer

import (
	"fmt"
	"strings"
	"time"
)

// DateUnit is one calendar component of an indexed date.
type DateUnit int

const (
	Year DateUnit = iota
	Month
	Day
	Hour
	Minute
	Second
	Millisecond
	numDateUnits
)

// DateUnits lists the units from coarsest to finest.
var DateUnits = [numDateUnits]DateUnit{Year, Month, Day, Hour, Minute, Second, Millisecond}

var unitPrefix = [numDateUnits]string{"YE", "MO", "DA", "HO", "MI", "SE", "MS"}
var unitWidth = [numDateUnits]int{4, 2, 2, 2, 2, 2, 3}
var unitMin = [numDateUnits]int{0, 1, 1, 0, 0, 0, 0}
var unitMax = [numDateUnits]int{9999, 12, 31, 23, 59, 59, 999}

func (u DateUnit) String() string {
	if u < 0 || u >= numDateUnits {
		return fmt.Sprintf("DateUnit(%d)", int(u))
	}
	return unitPrefix[u]
}

// Min is the smallest value the unit takes.
func (u DateUnit) Min() int { return unitMin[u] }

// Max is the largest value the unit takes. Day is bounded by 31 regardless
// of month; terms for days a month lacks are never indexed.
func (u DateUnit) Max() int { return unitMax[u] }

// Term renders the zero-padded term for value v of unit u, e.g. MO03.
func (u DateUnit) Term(v int) string {
	return fmt.Sprintf("%s%0*d", unitPrefix[u], unitWidth[u], v)
}

// DateComponents are the seven unit values of an instant, month 1-based.
type DateComponents [numDateUnits]int

// Components splits t (in UTC) into unit values.
func Components(t time.Time) DateComponents {
	t = t.UTC()
	return DateComponents{
		t.Year(),
		int(t.Month()),
		t.Day(),
		t.Hour(),
		t.Minute(),
		t.Second(),
		t.Nanosecond() / int(time.Millisecond),
	}
}

// DateTerms renders every component term of t.
func DateTerms(t time.Time) []string {
	c := Components(t)
	out := make([]string, numDateUnits)
	for _, u := range DateUnits {
		out[u] = u.Term(c[u])
	}
	return out
}

var dateLayouts = []string{
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02T15:04:05.000",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseDate accepts ISO-8601 date and datetime forms; values without a
// zone are UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

// dateAnalyzer emits the seven component terms of a date value at a single
// position, or a TypeNoTokens token when the value does not parse.
type dateAnalyzer struct{}

func (dateAnalyzer) Analyze(text string) TokenStream {
	t, err := ParseDate(text)
	if err != nil {
		return Stream([]Token{{Text: NoTokensText, End: len(text), PositionIncrement: 1, Type: TypeNoTokens}})
	}
	terms := DateTerms(t)
	tokens := make([]Token, len(terms))
	for i, term := range terms {
		incr := 0
		if i == 0 {
			incr = 1
		}
		tokens[i] = Token{Text: term, End: len(text), PositionIncrement: incr, Type: TypeDate}
	}
	return Stream(tokens)
}
