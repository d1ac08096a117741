package discovery

import (
	"fmt"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/applypilot/internal/form"
)

// PrefixGroup merges flat checkboxes sharing an id prefix (ID_Q_12_A_1, ID_Q_12_A_2, …) into
// one MultiChoice question. Some multi-select widgets render without a common container.
type PrefixGroup struct{}

func (PrefixGroup) Name() string { return "prefix-group" }

func (s PrefixGroup) Discover(doc *html.Node) ([]form.Descriptor, []error) {
	boxes := htmlquery.Find(doc,
		"//input[@type='checkbox'][starts-with(@id, 'ID_Q_') or starts-with(@id, 'AU_Q_')]")

	var heads []*html.Node
	seen := make(map[string]bool)
	for _, b := range boxes {
		prefix := GroupPrefix(htmlquery.SelectAttr(b, "id"))
		if seen[prefix] {
			continue
		}
		seen[prefix] = true
		heads = append(heads, b)
	}

	return each(s.Name(), heads, func(first *html.Node) (form.Descriptor, bool, error) {
		prefix := GroupPrefix(htmlquery.SelectAttr(first, "id"))
		options := choiceLabels(doc, htmlquery.Find(doc, PrefixInputsXPath(prefix, "")))
		if len(options) == 0 {
			return form.Descriptor{}, false, nil
		}

		question, required := prefix, false
		heading, err := htmlquery.Query(doc, fmt.Sprintf(
			"//label[@for=%[1]s or (starts-with(@for, %[2]s) and not(starts-with(@for, %[3]s)))]",
			Literal(prefix), Literal(prefix+"_"), Literal(prefix+"_A_"),
		))
		if err != nil {
			return form.Descriptor{}, false, err
		}
		if heading != nil {
			question = headingText(heading)
			required = form.IsRequired(text(heading))
		}

		return form.Descriptor{
			Text:     form.Normalize(question),
			Type:     form.MultiChoice,
			Options:  options,
			Required: required,
			Target:   form.Target{Prefix: prefix},
		}, true, nil
	})
}
