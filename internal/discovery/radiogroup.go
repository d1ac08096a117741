package discovery

import (
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/applypilot/internal/form"
)

// RadioGroup finds ARIA radio groups whose legend carries the question.
type RadioGroup struct{}

func (RadioGroup) Name() string { return "radio-group" }

func (s RadioGroup) Discover(doc *html.Node) ([]form.Descriptor, []error) {
	groups := htmlquery.Find(doc, "//fieldset[@role='radiogroup']")
	return each(s.Name(), groups, func(fs *html.Node) (form.Descriptor, bool, error) {
		legend := htmlquery.FindOne(fs, ".//legend")
		if legend == nil {
			return form.Descriptor{}, false, nil
		}
		radios := htmlquery.Find(fs, ".//input[@type='radio']")
		return form.Descriptor{
			Text:     form.Normalize(headingText(legend)),
			Type:     form.SingleChoice,
			Options:  choiceLabels(fs, radios),
			Required: form.IsRequired(text(legend)),
			Target: form.Target{
				ID:    htmlquery.SelectAttr(fs, "id"),
				Group: UniqueXPath(fs),
			},
		}, true, nil
	})
}
