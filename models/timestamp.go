package models

import "time"

// Timestamp is the serializable seconds/nanoseconds shape used on every
// document. The upstream document store hands out a timestamp type that is
// not JSON-serializable; everything cached or queued locally goes through
// this plain struct instead.
type Timestamp struct {
	Seconds     int64 `json:"seconds"`
	Nanoseconds int32 `json:"nanoseconds"`
}

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{
		Seconds:     t.Unix(),
		Nanoseconds: int32(t.Nanosecond()),
	}
}

func TimestampNow() Timestamp {
	return NewTimestamp(time.Now().UTC())
}

func (t Timestamp) Time() time.Time {
	return time.Unix(t.Seconds, int64(t.Nanoseconds)).UTC()
}

func (t Timestamp) IsZero() bool {
	return t.Seconds == 0 && t.Nanoseconds == 0
}

func (t Timestamp) Before(other Timestamp) bool {
	if t.Seconds != other.Seconds {
		return t.Seconds < other.Seconds
	}
	return t.Nanoseconds < other.Nanoseconds
}

func (t Timestamp) Equal(other Timestamp) bool {
	return t.Seconds == other.Seconds && t.Nanoseconds == other.Nanoseconds
}
