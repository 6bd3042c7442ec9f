package queue

import (
	"fmt"
	"time"
)

// AddedLayout is the layout job records use for their "added" field.
const AddedLayout = "2006-01-02 15:04:05.000000"

// ParseError reports an "added" value that does not match AddedLayout.
type ParseError struct {
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("queue: parse added timestamp %q: %v", e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseAdded converts an "added" timestamp into Unix epoch seconds.
// The value carries no zone, so it is read as wall-clock time in loc (time.Local when nil).
func ParseAdded(value string, loc *time.Location) (float64, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(AddedLayout, value, loc)
	if err != nil {
		return 0, &ParseError{Value: value, Err: err}
	}
	return EpochSeconds(t), nil
}

// EpochSeconds returns t as fractional seconds since the Unix epoch.
func EpochSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/float64(time.Second)
}
