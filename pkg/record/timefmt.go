package record

import "time"

// TimeFormat is a layout used to stamp time values.
type TimeFormat string

const (
	// StandardTime is second precision: 2024-05-01 13:04:05.
	StandardTime TimeFormat = "2006-01-02 15:04:05"
	// PreciseTime adds microseconds.
	PreciseTime TimeFormat = "2006-01-02 15:04:05.000000"
)

// parseLayouts are tried in order when a timestamp arrives as text.
var parseLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Precision is the smallest unit the format keeps.
func (f TimeFormat) Precision() time.Duration {
	if f == PreciseTime {
		return time.Microsecond
	}
	return time.Second
}

// Now returns the current UTC time rendered with format.
func Now(format TimeFormat) string {
	return time.Now().UTC().Format(string(format))
}

func parseTime(s string) (time.Time, error) {
	var err error
	for _, layout := range parseLayouts {
		var t time.Time
		if t, err = time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}
