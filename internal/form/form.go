// Package form holds the value types shared by discovery, resolution and filling:
// the control taxonomy, question descriptors and the text normalization that keys the answer bank.
package form

import (
	"fmt"
	"strings"
)

// ControlType is the kind of input a question is answered with.
type ControlType int

const (
	Text ControlType = iota
	SingleChoice
	MultiChoice
	Dropdown
)

var controlNames = map[ControlType]string{
	Text:         "Text",
	SingleChoice: "SingleChoice",
	MultiChoice:  "MultiChoice",
	Dropdown:     "Dropdown",
}

func (c ControlType) String() string {
	if name, ok := controlNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ControlType(%d)", int(c))
}

// HasOptions reports whether answers for this control are picked from a list.
func (c ControlType) HasOptions() bool {
	return c != Text
}

// ParseControlType accepts the persisted names. "Choice" is the legacy name for SingleChoice.
func ParseControlType(s string) (ControlType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "":
		return Text, nil
	case "singlechoice", "choice":
		return SingleChoice, nil
	case "multichoice":
		return MultiChoice, nil
	case "dropdown":
		return Dropdown, nil
	}
	return Text, fmt.Errorf("unknown control type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (c ControlType) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *ControlType) UnmarshalText(b []byte) error {
	parsed, err := ParseControlType(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Target locates the live control for a descriptor. It is only valid for the step it was
// discovered on; the page owns the element.
type Target struct {
	// ID is the element id of the control or group container, when it has one.
	ID string
	// XPath addresses the control itself (text inputs, selects).
	XPath string
	// Group addresses a container whose descendant radios/checkboxes are the options.
	Group string
	// Prefix is the shared id prefix of a flat checkbox group ("ID_Q_12" for "ID_Q_12_A_3").
	Prefix string
}

// Descriptor is one discovered question on the current wizard step.
type Descriptor struct {
	Text     string
	Type     ControlType
	Options  []string
	Required bool
	Target   Target
	// Strategy names the discovery heuristic that produced the descriptor.
	Strategy string
}

// MinQuestionLength is the shortest normalized text accepted as a question.
const MinQuestionLength = 4

// RequiredMarker is the glyph sites append to mandatory labels.
const RequiredMarker = "*"

// Normalize strips required markers and collapses whitespace.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, RequiredMarker, "")
	return strings.Join(strings.Fields(text), " ")
}

// Key is the answer bank lookup key for a question text.
func Key(text string) string {
	return strings.ToLower(Normalize(text))
}

// IsRequired reports whether raw label text carries the required marker.
func IsRequired(raw string) bool {
	return strings.Contains(raw, RequiredMarker)
}

// MultiChoiceDelimiter separates option labels inside a stored MultiChoice answer.
const MultiChoiceDelimiter = "|"

// JoinChoices encodes selected option labels as a stored MultiChoice answer.
func JoinChoices(labels []string) string {
	return strings.Join(labels, " "+MultiChoiceDelimiter+" ")
}

// SplitChoices decodes a stored MultiChoice answer, dropping blanks.
func SplitChoices(answer string) []string {
	var out []string
	for _, part := range strings.Split(answer, MultiChoiceDelimiter) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LabelMatches reports a case-insensitive substring match in either direction.
// Empty strings never match.
func LabelMatches(label, token string) bool {
	l := strings.ToLower(strings.TrimSpace(label))
	t := strings.ToLower(strings.TrimSpace(token))
	if l == "" || t == "" {
		return false
	}
	return strings.Contains(l, t) || strings.Contains(t, l)
}
