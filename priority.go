package threading

import (
	"strings"

	"github.com/ygrebnov/errorc"
)

// Priority is the scheduling priority of the pool's worker threads.
type Priority int

const (
	PriorityLowest Priority = iota - 2
	PriorityBelowNormal
	PriorityNormal
	PriorityAboveNormal
	PriorityHighest
)

var priorityNames = map[Priority]string{
	PriorityLowest:      "lowest",
	PriorityBelowNormal: "below_normal",
	PriorityNormal:      "normal",
	PriorityAboveNormal: "above_normal",
	PriorityHighest:     "highest",
}

func (p Priority) String() string {
	if s, ok := priorityNames[p]; ok {
		return s
	}
	return "unknown"
}

func (p Priority) valid() bool { return p >= PriorityLowest && p <= PriorityHighest }

// nice maps the priority onto a Unix nice value: 10, 5, 0, -5, -10.
func (p Priority) nice() int { return -5 * int(p) }

// UnmarshalText parses a priority name such as "below_normal" (case-insensitive,
// '-' accepted for '_').
func (p *Priority) UnmarshalText(text []byte) error {
	name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(string(text))), "-", "_")
	for v, s := range priorityNames {
		if s == name {
			*p = v
			return nil
		}
	}
	return errorc.With(ErrInvalidConfig, errorc.String("priority", string(text)))
}

// MarshalText returns the priority name.
func (p Priority) MarshalText() ([]byte, error) {
	if !p.valid() {
		return nil, errorc.With(ErrInvalidConfig, errorc.String("priority", p.String()))
	}
	return []byte(p.String()), nil
}
