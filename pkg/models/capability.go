package models

import "strings"

// CapabilityClass identifies which device pool a task is eligible for.
type CapabilityClass string

const (
	// ClassRegular is for setup, layout and other low-reasoning work.
	ClassRegular CapabilityClass = "regular_model"
	// ClassThinking is for logic-heavy work that needs a reasoning model.
	ClassThinking CapabilityClass = "thinking_model"
)

// Classes lists every capability class in dispatch order.
var Classes = []CapabilityClass{ClassRegular, ClassThinking}

// Valid returns true if the class is a known value.
func (c CapabilityClass) Valid() bool {
	switch c {
	case ClassRegular, ClassThinking:
		return true
	default:
		return false
	}
}

// Short returns the class name without the "_model" suffix.
func (c CapabilityClass) Short() string {
	return strings.TrimSuffix(string(c), "_model")
}

// ParseCapabilityClass normalizes s into a capability class. Matching ignores
// case, surrounding quotes and backticks, and accepts the short forms
// "regular" and "thinking".
func ParseCapabilityClass(s string) (CapabilityClass, bool) {
	norm := strings.ToLower(strings.Trim(strings.TrimSpace(s), "\"'` "))
	switch norm {
	case string(ClassRegular), "regular":
		return ClassRegular, true
	case string(ClassThinking), "thinking":
		return ClassThinking, true
	default:
		return "", false
	}
}
