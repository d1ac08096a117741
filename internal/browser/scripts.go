package browser

import (
	"fmt"
	"strings"

	json "github.com/json-iterator/go"
)

const findByXPath = `function(xp) {
  return document.evaluate(xp, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
}`

const setValueFn = `function(xp, value) {
  const el = (` + findByXPath + `)(xp);
  if (!el) return false;
  const proto = el instanceof HTMLTextAreaElement ? HTMLTextAreaElement.prototype : HTMLInputElement.prototype;
  const setter = Object.getOwnPropertyDescriptor(proto, 'value').set;
  el.focus();
  setter.call(el, value);
  el.dispatchEvent(new Event('input', {bubbles: true}));
  el.dispatchEvent(new Event('change', {bubbles: true}));
  el.blur();
  return true;
}`

const selectOptionFn = `function(xp, value) {
  const el = (` + findByXPath + `)(xp);
  if (!el) return false;
  const setter = Object.getOwnPropertyDescriptor(HTMLSelectElement.prototype, 'value').set;
  setter.call(el, value);
  el.dispatchEvent(new Event('input', {bubbles: true}));
  el.dispatchEvent(new Event('change', {bubbles: true}));
  return el.value === value;
}`

const isCheckedFn = `function(xp) {
  const el = (` + findByXPath + `)(xp);
  if (!el) return null;
  return !!el.checked;
}`

const isEnabledFn = `function(xp) {
  const el = (` + findByXPath + `)(xp);
  if (!el) return null;
  return !el.disabled && el.getAttribute('aria-disabled') !== 'true';
}`

// invoke renders an immediately-invoked call of fn with JSON-encoded arguments.
func invoke(fn string, args ...string) (string, error) {
	encoded := make([]string, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return "", fmt.Errorf("failed to encode script argument: %w", err)
		}
		encoded[i] = string(b)
	}
	return fmt.Sprintf("(%s)(%s)", fn, strings.Join(encoded, ", ")), nil
}
