package extract

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/parsepay/internal/domain"
)

// DateLayout is the output format of extracted dates.
const DateLayout = "2006-01-02"

const (
	timestampAdjust = 0.05
	implicitAdjust  = -0.05

	// Dates further than this past the reference day are pulled back.
	futureWindowDays = 30

	// A bare clock time this far ahead of the reference belongs to the previous day.
	timeOnlyLookahead = 3 * time.Hour

	relativeConfidence         = 0.85
	relativeAnchoredConfidence = 0.9
	billingPeriodConfidence    = 0.65
	subscriptionConfidence     = 0.6
	serviceBillConfidence      = 0.55
	timeOnlyConfidence         = 0.5
)

type dateFamily int

const (
	familyNumeric dateFamily = iota
	familyISO
	familyAbbrevMonth
	familyMonthDay
	familyDayMonth
)

// dateShapes lists the recognized date layouts in match order.
// Each body captures exactly three groups.
var dateShapes = []struct {
	family     dateFamily
	body       string
	confidence float64
}{
	{familyNumeric, `(\d{1,2})[/.-](\d{1,2})[/.-](\d{4}|\d{2})\b`, 0.95},
	{familyISO, `(\d{4})[/.-](\d{1,2})[/.-](\d{1,2})\b`, 0.95},
	{familyAbbrevMonth, `(\d{1,2})[-/]([A-Za-z]{3,4})[-/](\d{4}|\d{2})\b`, 0.9},
	{familyMonthDay, `([A-Za-z]{3,9})\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`, 0.85},
	{familyDayMonth, `(\d{1,2})(?:st|nd|rd|th)?\s+([A-Za-z]{3,9})\.?,?\s+(\d{4})\b`, 0.85},
}

type datePattern struct {
	re         *regexp.Regexp
	family     dateFamily
	confidence float64
}

func buildDateTier(prefix, suffix string, adjust float64) []datePattern {
	tier := make([]datePattern, 0, len(dateShapes))
	for _, s := range dateShapes {
		tier = append(tier, datePattern{
			re:         regexp.MustCompile(prefix + s.body + suffix),
			family:     s.family,
			confidence: math.Min(1, math.Round((s.confidence+adjust)*100)/100),
		})
	}
	return tier
}

const dateIndicator = `(?i)\b(?:on|dated|date)\b[^a-zA-Z0-9]*`

// DateTable is the compiled set of explicit date patterns, grouped in
// priority tiers. It is immutable once built.
type DateTable struct {
	tiers [][]datePattern
}

// NewDateTable compiles the date tiers: after an indicator word, next to a
// clock time, then bare.
func NewDateTable() *DateTable {
	return &DateTable{
		tiers: [][]datePattern{
			buildDateTier(dateIndicator, ``, 0),
			buildDateTier(`(?i)\b`, `[\sT,:@-]*(?:at\s+)?\d{1,2}:\d{2}`, timestampAdjust),
			buildDateTier(`(?i)\b`, ``, implicitAdjust),
		},
	}
}

type relativeDay struct {
	bare     *regexp.Regexp
	anchored *regexp.Regexp
	offset   int
}

func newRelativeDay(word string, offset int) relativeDay {
	return relativeDay{
		bare:     regexp.MustCompile(`(?i)\b` + word + `\b`),
		anchored: regexp.MustCompile(dateIndicator + word + `\b`),
		offset:   offset,
	}
}

var relativeDays = []relativeDay{
	newRelativeDay("today", 0),
	newRelativeDay("yesterday", -1),
	newRelativeDay("tomorrow", 1),
}

var (
	billingPeriod          = regexp.MustCompile(`(?i)\bbill\s+for\s+(?:the\s+month\s+of\s+)?([A-Za-z]{3,9})\b(?:[\s,'-]+(\d{4}|\d{2})\b)?`)
	subscriptionVocabulary = regexp.MustCompile(`(?i)\b(?:subscription|renewal|renewed|membership|auto-?debit|mandate)\b`)
	serviceBillVocabulary  = regexp.MustCompile(`(?i)\b(?:bill|recharge|recharged|electricity|utility|broadband|dth|postpaid|prepaid)\b`)
	clockTime              = regexp.MustCompile(`(?i)\b([01]?\d|2[0-3]):([0-5]\d)(?::[0-5]\d)?(?:\s*([ap])\.?m\b\.?)?`)
)

var monthNames = map[string]time.Month{
	"jan": time.January, "january": time.January,
	"feb": time.February, "february": time.February,
	"mar": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "sept": time.September, "september": time.September,
	"oct": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

// Date resolves the transaction date in text relative to ref.
// Explicit dates are tried first, then relative words, service inference
// and finally a bare clock time.
func (t *DateTable) Date(text string, ref time.Time) domain.FieldResult {
	refDay := calendarDay(ref)

	for _, tier := range t.tiers {
		for _, p := range tier {
			// A malformed candidate does not hide a later one of the same shape.
			for _, m := range p.re.FindAllStringSubmatch(text, -1) {
				if d, ok := p.parse(m); ok {
					return foundDate(clampFuture(d, refDay), p.confidence)
				}
			}
		}
	}

	for _, r := range relativeDays {
		if !r.bare.MatchString(text) {
			continue
		}
		conf := relativeConfidence
		if r.anchored.MatchString(text) {
			conf = relativeAnchoredConfidence
		}
		return foundDate(clampFuture(refDay.AddDate(0, 0, r.offset), refDay), conf)
	}

	if d, conf, ok := serviceDate(text, refDay); ok {
		return foundDate(clampFuture(d, refDay), conf)
	}

	if d, ok := timeOnlyDate(text, ref); ok {
		return foundDate(d, timeOnlyConfidence)
	}

	return domain.Missing("Date not found")
}

func foundDate(d time.Time, confidence float64) domain.FieldResult {
	return domain.Found(d.Format(DateLayout), confidence, domain.SourceRule)
}

func (p datePattern) parse(m []string) (time.Time, bool) {
	var dayS, monthS, yearS string
	switch p.family {
	case familyISO:
		yearS, monthS, dayS = m[1], m[2], m[3]
	case familyMonthDay:
		monthS, dayS, yearS = m[1], m[2], m[3]
	default:
		dayS, monthS, yearS = m[1], m[2], m[3]
	}

	var month time.Month
	if p.family == familyNumeric || p.family == familyISO {
		n, err := strconv.Atoi(monthS)
		if err != nil || n < 1 || n > 12 {
			return time.Time{}, false
		}
		month = time.Month(n)
	} else {
		var ok bool
		if month, ok = monthNames[strings.ToLower(monthS)]; !ok {
			return time.Time{}, false
		}
	}

	day, err := strconv.Atoi(dayS)
	if err != nil {
		return time.Time{}, false
	}
	year, ok := resolveYear(yearS)
	if !ok {
		return time.Time{}, false
	}
	return civilDate(year, month, day)
}

// resolveYear expands two-digit years (below 50 is 20xx) and lifts any
// year before 2000 into the 2000s.
func resolveYear(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	if len(s) == 2 {
		if n < 50 {
			n += 2000
		} else {
			n += 1900
		}
	}
	if n < 2000 {
		n += 2000
	}
	return n, true
}

// civilDate builds a UTC calendar date, rejecting out-of-range days.
func civilDate(year int, month time.Month, day int) (time.Time, bool) {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || t.Month() != month || t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

func calendarDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// clampFuture pulls a date more than the future window past refDay back
// into the reference year, then into the year before if still too far.
func clampFuture(d, refDay time.Time) time.Time {
	limit := refDay.AddDate(0, 0, futureWindowDays)
	if !d.After(limit) {
		return d
	}
	d = withYear(d, refDay.Year())
	if d.After(limit) {
		d = withYear(d, refDay.Year()-1)
	}
	return d
}

// withYear moves d to year, turning Feb 29 into Feb 28 outside leap years.
func withYear(d time.Time, year int) time.Time {
	day := d.Day()
	if d.Month() == time.February && day == 29 && !isLeap(year) {
		day = 28
	}
	return time.Date(year, d.Month(), day, 0, 0, 0, 0, time.UTC)
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// serviceDate infers a date for bill and subscription payments.
func serviceDate(text string, refDay time.Time) (time.Time, float64, bool) {
	if m := billingPeriod.FindStringSubmatch(text); m != nil {
		if month, ok := monthNames[strings.ToLower(m[1])]; ok {
			year := refDay.Year()
			if m[2] != "" {
				year, _ = resolveYear(m[2])
			}
			return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC), billingPeriodConfidence, true
		}
	}
	if subscriptionVocabulary.MatchString(text) {
		return refDay, subscriptionConfidence, true
	}
	if serviceBillVocabulary.MatchString(text) {
		return refDay, serviceBillConfidence, true
	}
	return time.Time{}, 0, false
}

// timeOnlyDate dates a bare clock time to the reference day, or the day
// before when the time lies well ahead of the reference clock.
func timeOnlyDate(text string, ref time.Time) (time.Time, bool) {
	m := clockTime.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	switch strings.ToLower(m[3]) {
	case "a", "p":
		if hour < 1 || hour > 12 {
			return time.Time{}, false
		}
		hour %= 12
		if strings.EqualFold(m[3], "p") {
			hour += 12
		}
	}

	refDay := calendarDay(ref)
	at := time.Date(ref.Year(), ref.Month(), ref.Day(), hour, minute, 0, 0, ref.Location())
	if at.Sub(ref) > timeOnlyLookahead {
		return refDay.AddDate(0, 0, -1), true
	}
	return refDay, true
}
