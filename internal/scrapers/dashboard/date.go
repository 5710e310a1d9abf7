package dashboard

import (
	"errors"
	"regexp"
	"strings"
	"time"
	"transitperf/internal/performance"
	"transitperf/pkg/htmlutil"

	"github.com/araddon/dateparse"
)

var (
	weekdayRegex = regexp.MustCompile(`(?i)^(monday|tuesday|wednesday|thursday|friday|saturday|sunday|mon|tues|tue|wed|thurs|thur|thu|fri|sat|sun)\.?,?\s+`)
	ordinalRegex = regexp.MustCompile(`(?i)\b(\d{1,2})(st|nd|rd|th)\b`)
	prefixRegex  = regexp.MustCompile(`(?i)^(data\s+)?(as\s+of|updated(\s+on)?|last\s+updated(\s+on)?|through)\s*:?\s*`)
)

var dateLayouts = []string{
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"Jan. 2, 2006",
	"2 January 2006",
	"1/2/2006",
	"1/2/06",
	"2006-01-02",
}

// cleanDateText strips the decoration the dashboard puts around its as-of
// date: a leading "as of" or "updated", the weekday and ordinal suffixes.
func cleanDateText(raw string) string {
	text := htmlutil.CleanText(raw)
	text = prefixRegex.ReplaceAllString(text, "")
	text = weekdayRegex.ReplaceAllString(text, "")
	text = ordinalRegex.ReplaceAllString(text, "$1")
	return strings.TrimRight(text, ". ")
}

// ResolveDate turns the free-text report date of a route detail page into a
// calendar date in loc. Text that carries no recognizable date is a parse
// error, never today's date.
func ResolveDate(raw string, loc *time.Location) (performance.Date, error) {
	text := cleanDateText(raw)
	if text == "" {
		return performance.Date{}, &performance.ParseError{
			Field: "report date",
			Raw:   raw,
			Err:   errors.New("empty date text"),
		}
	}

	for _, layout := range dateLayouts {
		t, err := time.ParseInLocation(layout, text, loc)
		if err == nil {
			return performance.DateOf(t), nil
		}
	}

	t, err := dateparse.ParseIn(text, loc)
	if err != nil {
		return performance.Date{}, &performance.ParseError{
			Field: "report date",
			Raw:   raw,
			Err:   err,
		}
	}
	return performance.DateOf(t.In(loc)), nil
}
