package discovery

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/applypilot/internal/form"
)

// answerSuffix is the per-option index appended to a choice group's id.
var answerSuffix = regexp.MustCompile(`_A_\d+$`)

// GroupPrefix strips the option index from a choice input id.
func GroupPrefix(id string) string {
	return answerSuffix.ReplaceAllString(id, "")
}

// LabeledInput finds <label for="question-…"> elements and classifies the control they point at.
type LabeledInput struct {
	Placeholders []string
}

func (LabeledInput) Name() string { return "labeled-input" }

func (s LabeledInput) Discover(doc *html.Node) ([]form.Descriptor, []error) {
	labels := htmlquery.Find(doc, "//label[starts-with(@for, 'question-')]")
	return each(s.Name(), labels, func(label *html.Node) (form.Descriptor, bool, error) {
		id := htmlquery.SelectAttr(label, "for")
		if answerSuffix.MatchString(id) {
			// An option label of a flat choice group, not a question.
			return form.Descriptor{}, false, nil
		}
		d := form.Descriptor{
			Text:     form.Normalize(headingText(label)),
			Type:     form.Text,
			Required: form.IsRequired(text(label)),
			Target:   form.Target{ID: id, XPath: ByID(id)},
		}

		target, err := htmlquery.Query(doc, ByID(id))
		if err != nil {
			return d, false, fmt.Errorf("bad control id %q: %w", id, err)
		}
		if target == nil {
			// The control may render late; the filler reports the failure if it never appears.
			return d, true, nil
		}

		switch strings.ToLower(target.Data) {
		case "select":
			d.Type = form.Dropdown
			d.Options = DropdownOptions(target, s.Placeholders)
		case "input":
			switch strings.ToLower(htmlquery.SelectAttr(target, "type")) {
			case "checkbox", "radio":
				d.Type = form.SingleChoice
				d.Target.Prefix = GroupPrefix(id)
				d.Options = choiceLabels(doc, htmlquery.Find(doc, PrefixInputsXPath(d.Target.Prefix, "")))
			}
		case "textarea":
		default:
			inputs := htmlquery.Find(target, ".//input[@type='radio' or @type='checkbox']")
			if len(inputs) > 0 {
				d.Type = form.SingleChoice
				if strings.EqualFold(htmlquery.SelectAttr(inputs[0], "type"), "checkbox") {
					d.Type = form.MultiChoice
				}
				d.Target.Group = ByID(id)
				d.Options = choiceLabels(doc, inputs)
			}
		}
		return d, true, nil
	})
}

// PrefixInputsXPath selects the inputs whose ids are prefix_A_<n>, or equal id when id is set.
func PrefixInputsXPath(prefix, id string) string {
	expr := fmt.Sprintf("starts-with(@id, %s)", Literal(prefix+"_A_"))
	if id != "" {
		expr += fmt.Sprintf(" or @id=%s", Literal(id))
	}
	return fmt.Sprintf("//input[%s]", expr)
}
