package discovery

import (
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Literal quotes s as an XPath 1.0 string literal. XPath has no escape syntax, so values holding
// both quote kinds are built with concat().
func Literal(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, 2*len(parts)-1)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		if p != "" {
			quoted = append(quoted, "'"+p+"'")
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

// ByID addresses the element with the given id.
func ByID(id string) string {
	return fmt.Sprintf("//*[@id=%s]", Literal(id))
}

// UniqueXPath builds an XPath for node, anchored on the nearest ancestor-or-self with an id.
func UniqueXPath(node *html.Node) string {
	if node == nil {
		return ""
	}

	var path []string
	for n := node; n != nil && n.Type != html.DocumentNode; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		tag := strings.ToLower(n.Data)
		if tag == "" {
			continue
		}

		if id := htmlquery.SelectAttr(n, "id"); id != "" {
			path = append(path, ByID(id))
			break
		}

		index := 1
		for prev := n.PrevSibling; prev != nil; prev = prev.PrevSibling {
			if prev.Type == html.ElementNode && strings.ToLower(prev.Data) == tag {
				index++
			}
		}
		path = append(path, fmt.Sprintf("%s[%d]", tag, index))
	}

	if len(path) == 0 {
		return "/"
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}

	xpath := strings.Join(path, "/")
	if !strings.HasPrefix(xpath, "//*[@id=") {
		xpath = "/" + xpath
	}
	return xpath
}

// text returns the whitespace-collapsed inner text of n.
func text(n *html.Node) string {
	if n == nil {
		return ""
	}
	return strings.Join(strings.Fields(htmlquery.InnerText(n)), " ")
}

// headingText prefers a <strong> child, which holds the question without helper copy.
func headingText(n *html.Node) string {
	if strong := htmlquery.FindOne(n, ".//strong"); strong != nil {
		if t := text(strong); t != "" {
			return t
		}
	}
	return text(n)
}

// LabelFor returns the text of the label bound to id, or "".
func LabelFor(root *html.Node, id string) string {
	if id == "" {
		return ""
	}
	lbl := htmlquery.FindOne(root, fmt.Sprintf("//label[@for=%s]", Literal(id)))
	return text(lbl)
}
