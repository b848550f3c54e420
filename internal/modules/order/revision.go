// README: Revision allowance, either a fixed number or unlimited.
package order

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const unlimitedRevisions = "unlimited"

// Revisions is the allowance a package grants. The zero value is Numeric(0).
type Revisions struct {
	unlimited bool
	n         int
}

func Numeric(n int) Revisions {
	if n < 0 {
		n = 0
	}
	return Revisions{n: n}
}

func Unlimited() Revisions { return Revisions{unlimited: true} }

func (r Revisions) IsUnlimited() bool { return r.unlimited }

// Limit returns the numeric allowance; ok is false for Unlimited.
func (r Revisions) Limit() (n int, ok bool) {
	if r.unlimited {
		return 0, false
	}
	return r.n, true
}

// Allows reports whether another revision fits after used ones.
func (r Revisions) Allows(used int) bool {
	return r.unlimited || used < r.n
}

func (r Revisions) String() string {
	if r.unlimited {
		return unlimitedRevisions
	}
	return strconv.Itoa(r.n)
}

// Value is the stored form: the string "unlimited" or an int64.
func (r Revisions) Value() any {
	if r.unlimited {
		return unlimitedRevisions
	}
	return int64(r.n)
}

func (r Revisions) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Value())
}

func (r *Revisions) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	v, err := ParseRevisions(raw)
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// ParseRevisions decodes the stored or wire form of an allowance.
func ParseRevisions(v any) (Revisions, error) {
	switch t := v.(type) {
	case nil:
		return Numeric(0), nil
	case string:
		s := strings.TrimSpace(strings.ToLower(t))
		if s == unlimitedRevisions {
			return Unlimited(), nil
		}
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return Revisions{}, fmt.Errorf("order: revisions %q is neither a count nor %q", t, unlimitedRevisions)
		}
		return Numeric(n), nil
	case int:
		return parseCount(int64(t))
	case int64:
		return parseCount(t)
	case float64:
		if t != float64(int64(t)) {
			return Revisions{}, fmt.Errorf("order: revisions %v is not a whole number", t)
		}
		return parseCount(int64(t))
	}
	return Revisions{}, fmt.Errorf("order: unsupported revisions value %T", v)
}

func parseCount(n int64) (Revisions, error) {
	if n < 0 {
		return Revisions{}, fmt.Errorf("order: revisions %d is negative", n)
	}
	return Numeric(int(n)), nil
}

// CanRequestRevision reports whether the client may ask for another revision now.
func CanRequestRevision(o *Order) bool {
	return o != nil && o.Status == StatusDelivered && o.Revisions.Allows(o.RevisionCount)
}

// CheckRevision explains why CanRequestRevision is false.
func CheckRevision(o *Order) error {
	if o == nil {
		return ErrNotFound
	}
	if o.Status != StatusDelivered {
		return &TransitionError{From: o.Status, To: StatusInRevision}
	}
	if !o.Revisions.Allows(o.RevisionCount) {
		limit, _ := o.Revisions.Limit()
		return &RevisionQuotaError{Current: o.RevisionCount, Max: limit}
	}
	return nil
}
