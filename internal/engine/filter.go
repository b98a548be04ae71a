package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EventFilter is the trigger: the event type must match exactly and every
// constraint must hold (conjunction) for the message to be a candidate.
type EventFilter struct {
	EventType   string       `json:"event_type"`
	Constraints []Constraint `json:"filter,omitempty"`
}

// Constraint targets either a named event property or the event timestamp.
// Attribute: "property" | "timestamp" (extensible)
type Constraint struct {
	Attribute string   `json:"attribute"`
	Property  string   `json:"property,omitempty"`
	Operator  string   `json:"operator"`
	Operands  []string `json:"operands,omitempty"`
}

// Supported constraint operators.
const (
	OpEquals      = "equals"
	OpNotEqual    = "does not equal"
	OpContains    = "contains"
	OpIn          = "in"
	OpIsSet       = "is set"
	OpIsNotSet    = "is not set"
	OpGreaterThan = "greater than"
	OpLessThan    = "less than"
)

// Matches reports whether the event triggers this filter.
func (f EventFilter) Matches(ev Event) bool {
	if f.EventType != ev.Type {
		return false
	}
	for _, c := range f.Constraints {
		if !c.holds(ev) {
			return false
		}
	}
	return true
}

func (c Constraint) holds(ev Event) bool {
	switch strings.ToLower(c.Attribute) {
	case "timestamp":
		return c.holdsNumeric(float64(ev.Timestamp.Unix()))
	default: // property
		raw, set := ev.Properties[c.Property]
		return c.holdsProperty(raw, set)
	}
}

func (c Constraint) holdsProperty(raw any, set bool) bool {
	switch c.Operator {
	case OpIsSet:
		return set
	case OpIsNotSet:
		return !set
	}
	if !set {
		return false
	}
	val := stringify(raw)
	switch c.Operator {
	case OpEquals:
		return len(c.Operands) > 0 && val == c.Operands[0]
	case OpNotEqual:
		return len(c.Operands) > 0 && val != c.Operands[0]
	case OpContains:
		return len(c.Operands) > 0 && strings.Contains(val, c.Operands[0])
	case OpIn:
		for _, op := range c.Operands {
			if val == op {
				return true
			}
		}
		return false
	case OpGreaterThan, OpLessThan:
		n, err := toFloat(raw)
		if err != nil {
			return false
		}
		return c.holdsNumeric(n)
	}
	// Unknown operator fails closed: better to skip a message than to
	// show one the backend meant to gate.
	return false
}

func (c Constraint) holdsNumeric(val float64) bool {
	if len(c.Operands) == 0 {
		return false
	}
	bound, err := strconv.ParseFloat(c.Operands[0], 64)
	if err != nil {
		return false
	}
	switch c.Operator {
	case OpGreaterThan:
		return val > bound
	case OpLessThan:
		return val < bound
	case OpEquals:
		return val == bound
	}
	return false
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return fmt.Sprint(v)
	}
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case string:
		return strconv.ParseFloat(t, 64)
	default:
		return 0, fmt.Errorf("value %v is not numeric", v)
	}
}
