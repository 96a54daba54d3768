// Package normalize maps raw source items into the canonical Event shape.
//
// Normalization never fails: missing or malformed fields are replaced with
// defaults so every collector item and every API payload yields a storable
// event.
package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/okian/see1right/internal/domain/model"
)

// Epoch values above this are taken to be milliseconds rather than seconds.
const epochMillisThreshold = 1e12

// Bounds of a renderable created_at. maxEpochMillis keeps int64 conversion
// from overflowing; anything past it is beyond year 9999 anyway.
const (
	minYear        = 1
	maxYear        = 9999
	maxEpochMillis = 1e15
)

// Accepted created_at layouts, tried in order. Values without a zone are UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// Defaults fills fields the raw item does not provide.
type Defaults struct {
	// Source is the provenance tag used when the item carries none.
	Source string
	// Category is used when the item carries none; empty means "unknown".
	Category string
	// Now supplies created_at for items without one; nil means time.Now.
	Now func() time.Time
	// NewID supplies ids for items without one; nil means a random UUID.
	NewID func() string
}

// Normalize builds an Event from raw, substituting defaults for anything
// missing. It never rejects input.
func Normalize(raw model.RawItem, d Defaults) model.Event {
	e := model.Event{
		Category:  firstNonEmpty(str(raw, model.FieldCategory), d.Category, model.DefaultCategory),
		Headline:  str(raw, model.FieldHeadline),
		Source:    firstNonEmpty(str(raw, model.FieldSource), d.Source, model.DefaultCategory),
		Permalink: str(raw, model.FieldPermalink),
	}

	e.ID = strings.TrimSpace(str(raw, model.FieldID))
	if e.ID == "" {
		if d.NewID != nil {
			e.ID = d.NewID()
		} else {
			e.ID = uuid.NewString()
		}
	}

	if ts, ok := ParseTime(raw[model.FieldCreatedAt]); ok {
		e.CreatedAt = model.FormatTime(ts)
	} else {
		now := time.Now
		if d.Now != nil {
			now = d.Now
		}
		e.CreatedAt = model.FormatTime(now())
	}

	return e
}

// ParseTime interprets v as a timestamp. Strings are tried against the
// accepted layouts and then as a unix epoch; numbers are unix epochs in
// seconds (or milliseconds when implausibly large for seconds).
func ParseTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return inRange(t.UTC())
			}
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return fromEpoch(f)
		}
	case float64:
		return fromEpoch(x)
	case int64:
		return fromEpoch(float64(x))
	case int:
		return fromEpoch(float64(x))
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return fromEpoch(f)
		}
	case time.Time:
		if !x.IsZero() {
			return inRange(x.UTC())
		}
	}
	return time.Time{}, false
}

func fromEpoch(f float64) (time.Time, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return time.Time{}, false
	}
	if f > epochMillisThreshold {
		if f >= maxEpochMillis {
			return time.Time{}, false
		}
		return inRange(time.UnixMilli(int64(f)).UTC())
	}
	sec, frac := math.Modf(f)
	return inRange(time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC())
}

// inRange rejects instants that do not fit the four-digit year of
// model.TimeLayout; stored values sort as text.
func inRange(t time.Time) (time.Time, bool) {
	if t.Year() < minYear || t.Year() > maxYear {
		return time.Time{}, false
	}
	return t, true
}

// str returns raw[key] rendered as a string when it holds a scalar.
func str(raw model.RawItem, key string) string {
	switch x := raw[key].(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
