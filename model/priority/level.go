// Package priority defines the ordinal urgency levels used to rank
// submissions.
package priority

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Level represents task urgency; higher is more urgent.
type Level int

const (
	// Unspecified means the level should be resolved from task-type or
	// scheduler defaults.
	Unspecified Level = iota
	Low
	Medium
	High
	Critical
)

var names = map[Level]string{
	Unspecified: "UNSPECIFIED",
	Low:         "LOW",
	Medium:      "MEDIUM",
	High:        "HIGH",
	Critical:    "CRITICAL",
}

// String returns upper-case level name
func (l Level) String() string {
	if name, ok := names[l]; ok {
		return name
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// IsValid returns true for LOW..CRITICAL
func (l Level) IsValid() bool {
	return l >= Low && l <= Critical
}

// Add returns level raised (or lowered) by delta, clamped to [Low, Critical].
func (l Level) Add(delta int) Level {
	ret := l + Level(delta)
	if ret > Critical {
		return Critical
	}
	if ret < Low {
		return Low
	}
	return ret
}

// Or returns l when specified, otherwise fallback
func (l Level) Or(fallback Level) Level {
	if l == Unspecified {
		return fallback
	}
	return l
}

// Parse converts a case-insensitive level name (or its ordinal) to Level.
func Parse(text string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(text)) {
	case "":
		return Unspecified, nil
	case "LOW", "1":
		return Low, nil
	case "MEDIUM", "2":
		return Medium, nil
	case "HIGH", "3":
		return High, nil
	case "CRITICAL", "4":
		return Critical, nil
	}
	return Unspecified, fmt.Errorf("unsupported priority level: %q", text)
}

// MarshalText implements encoding.TextMarshaler
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (l *Level) UnmarshalText(data []byte) error {
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (l *Level) UnmarshalYAML(node *yaml.Node) error {
	return l.UnmarshalText([]byte(node.Value))
}
