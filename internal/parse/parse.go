// Package parse extracts plain text and static form structure from
// raw HTML. Pure CPU-bound work, no DOM access.
package parse

import (
	"strings"

	"golang.org/x/net/html"
)

// HTMLToText returns the visible text of a document, one trimmed line
// per text node, with script/style/noscript subtrees dropped.
func HTMLToText(src string) string {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return ""
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				return
			}
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				b.WriteString(t)
				b.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.TrimRight(b.String(), "\n")
}

// Snippet is HTMLToText capped at max bytes, for prompt budgets.
func Snippet(src string, max int) string {
	text := HTMLToText(src)
	if max > 0 && len(text) > max {
		text = text[:max]
	}
	return text
}

// FormField is one input-like element inside a form.
type FormField struct {
	Tag     string            `json:"tag"`
	Type    string            `json:"type"`
	Name    string            `json:"name,omitempty"`
	ID      string            `json:"id,omitempty"`
	Options []string          `json:"options,omitempty"`
	Attrs   map[string]string `json:"attrs,omitempty"`
}

// Form is a statically parsed <form> element.
type Form struct {
	Action string      `json:"action,omitempty"`
	Method string      `json:"method,omitempty"`
	Fields []FormField `json:"fields"`
}

// ExtractForms collects every form with its input/select/textarea
// fields. Select fields carry their option labels.
func ExtractForms(src string) []Form {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return nil
	}
	var forms []Form
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "form" {
			forms = append(forms, parseForm(n))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return forms
}

func parseForm(form *html.Node) Form {
	f := Form{
		Action: attrValue(form, "action"),
		Method: attrValue(form, "method"),
	}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "input", "select", "textarea":
				f.Fields = append(f.Fields, parseField(n))
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(form)
	return f
}

func parseField(n *html.Node) FormField {
	field := FormField{
		Tag:   n.Data,
		Name:  attrValue(n, "name"),
		ID:    attrValue(n, "id"),
		Attrs: make(map[string]string, len(n.Attr)),
	}
	for _, a := range n.Attr {
		field.Attrs[a.Key] = a.Val
	}
	if n.Data == "input" {
		field.Type = attrValue(n, "type")
		if field.Type == "" {
			field.Type = "text"
		}
	} else {
		field.Type = n.Data
	}
	if n.Data == "select" {
		field.Options = selectOptions(n)
	}
	return field
}

func selectOptions(sel *html.Node) []string {
	var opts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "option" {
			if label := strings.TrimSpace(nodeText(n)); label != "" {
				opts = append(opts, label)
			} else if v := attrValue(n, "value"); v != "" {
				opts = append(opts, v)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(sel)
	return opts
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
