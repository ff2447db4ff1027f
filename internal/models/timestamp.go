package models

import (
	"encoding/json"
	"time"
)

// Timestamp is a server-assigned creation time. A message read back before
// the store has resolved its server clock carries a pending timestamp;
// grouping logic must not assume a time is present.
type Timestamp struct {
	value     time.Time
	committed bool
}

// CommittedAt returns a timestamp resolved by the store.
func CommittedAt(t time.Time) Timestamp {
	return Timestamp{value: t.UTC(), committed: true}
}

// PendingTimestamp returns a timestamp the store has not resolved yet.
func PendingTimestamp() Timestamp {
	return Timestamp{}
}

// Committed reports whether the store has assigned a time.
func (ts Timestamp) Committed() bool {
	return ts.committed
}

// Time returns the assigned time and whether one exists.
func (ts Timestamp) Time() (time.Time, bool) {
	if !ts.committed {
		return time.Time{}, false
	}
	return ts.value, true
}

// Before orders committed timestamps chronologically. A pending timestamp is
// never before anything and nothing is before a pending timestamp; callers
// fall back to ID ordering for those.
func (ts Timestamp) Before(other Timestamp) bool {
	if !ts.committed || !other.committed {
		return false
	}
	return ts.value.Before(other.value)
}

// Equal reports whether both timestamps are committed to the same instant,
// or both pending.
func (ts Timestamp) Equal(other Timestamp) bool {
	if ts.committed != other.committed {
		return false
	}
	if !ts.committed {
		return true
	}
	return ts.value.Equal(other.value)
}

// SameDay reports whether both timestamps fall on the same calendar date in
// loc. A pending timestamp is on no day at all.
func (ts Timestamp) SameDay(other Timestamp, loc *time.Location) bool {
	if !ts.committed || !other.committed {
		return false
	}
	if loc == nil {
		loc = time.Local
	}
	ay, am, ad := ts.value.In(loc).Date()
	by, bm, bd := other.value.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// MarshalJSON encodes a pending timestamp as null.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if !ts.committed {
		return []byte("null"), nil
	}
	return json.Marshal(ts.value.Format(time.RFC3339Nano))
}

// UnmarshalJSON decodes null as pending.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*ts = Timestamp{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return err
	}
	*ts = CommittedAt(t)
	return nil
}
