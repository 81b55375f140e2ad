package reference

import (
	"fmt"
	"strconv"
	"strings"
)

// Condition is a parsed numeric match expression such as "< 0.3",
// ">= 0.7", the inclusive range "0.3-0.6" or the interval "[0.35,0.7)",
// whose closing bracket picks an inclusive or exclusive upper bound. The
// zero value matches everything.
type Condition struct {
	raw    string
	op     string
	lo, hi float64
}

// ParseCondition parses s. An empty string yields a condition that always
// matches.
func ParseCondition(s string) (Condition, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Condition{}, nil
	}
	c := Condition{raw: s}
	for _, op := range []string{">=", "<=", ">", "<", "="} {
		if rest, ok := strings.CutPrefix(s, op); ok {
			v, err := strconv.ParseFloat(strings.TrimSpace(rest), 64)
			if err != nil {
				return Condition{}, fmt.Errorf("reference: condition %q: %w", s, err)
			}
			c.op, c.lo, c.hi = op, v, v
			return c, nil
		}
	}
	if strings.HasPrefix(s, "[") {
		return parseInterval(c)
	}
	// A range; the separator is searched after the first byte so a leading
	// sign is not mistaken for it.
	if i := strings.Index(s[1:], "-"); i >= 0 {
		lo, err := strconv.ParseFloat(strings.TrimSpace(s[:i+1]), 64)
		if err != nil {
			return Condition{}, fmt.Errorf("reference: condition %q: %w", s, err)
		}
		hi, err := strconv.ParseFloat(strings.TrimSpace(s[i+2:]), 64)
		if err != nil {
			return Condition{}, fmt.Errorf("reference: condition %q: %w", s, err)
		}
		if lo > hi {
			return Condition{}, fmt.Errorf("reference: condition %q: lower bound exceeds upper bound", s)
		}
		c.op, c.lo, c.hi = "range", lo, hi
		return c, nil
	}
	return Condition{}, fmt.Errorf("reference: condition %q: unrecognised operator", s)
}

// parseInterval handles "[lo,hi]" and "[lo,hi)".
func parseInterval(c Condition) (Condition, error) {
	s := c.raw
	var op string
	switch {
	case strings.HasSuffix(s, "]"):
		op = "range"
	case strings.HasSuffix(s, ")"):
		op = "half-open"
	default:
		return Condition{}, fmt.Errorf("reference: condition %q: unterminated interval", s)
	}
	los, his, ok := strings.Cut(s[1:len(s)-1], ",")
	if !ok {
		return Condition{}, fmt.Errorf("reference: condition %q: interval needs two bounds", s)
	}
	lo, err := strconv.ParseFloat(strings.TrimSpace(los), 64)
	if err != nil {
		return Condition{}, fmt.Errorf("reference: condition %q: %w", s, err)
	}
	hi, err := strconv.ParseFloat(strings.TrimSpace(his), 64)
	if err != nil {
		return Condition{}, fmt.Errorf("reference: condition %q: %w", s, err)
	}
	if lo > hi {
		return Condition{}, fmt.Errorf("reference: condition %q: lower bound exceeds upper bound", s)
	}
	c.op, c.lo, c.hi = op, lo, hi
	return c, nil
}

// Match reports whether v satisfies the condition.
func (c Condition) Match(v float64) bool {
	switch c.op {
	case "":
		return true
	case ">=":
		return v >= c.lo
	case "<=":
		return v <= c.lo
	case ">":
		return v > c.lo
	case "<":
		return v < c.lo
	case "=":
		return v == c.lo
	case "range":
		return v >= c.lo && v <= c.hi
	case "half-open":
		return v >= c.lo && v < c.hi
	}
	return false
}

// Bounds returns the interval covered by the condition, clipped to [0, 1].
// Open-ended comparisons extend to the nearest unit bound.
func (c Condition) Bounds() (lo, hi float64) {
	switch c.op {
	case ">", ">=":
		return clampUnit(c.lo), 1
	case "<", "<=":
		return 0, clampUnit(c.lo)
	case "=":
		return clampUnit(c.lo), clampUnit(c.lo)
	case "range", "half-open":
		return clampUnit(c.lo), clampUnit(c.hi)
	}
	return 0, 1
}

// String returns the original expression.
func (c Condition) String() string { return c.raw }

func clampUnit(v float64) float64 {
	return min(max(v, 0), 1)
}
