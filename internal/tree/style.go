package tree

import "strings"

type declaration struct {
	property string
	value    string
}

func parseStyle(s string) []declaration {
	var decls []declaration
	for _, part := range strings.Split(s, ";") {
		prop, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		prop = strings.TrimSpace(prop)
		if prop == "" {
			continue
		}
		decls = append(decls, declaration{property: strings.ToLower(prop), value: strings.TrimSpace(value)})
	}
	return decls
}

func formatStyle(decls []declaration) string {
	parts := make([]string, len(decls))
	for i, d := range decls {
		parts[i] = d.property + ": " + d.value
	}
	return strings.Join(parts, "; ")
}

// Style returns an inline style property from the style attribute.
func (n *Node) Style(property string) (string, bool) {
	raw, _ := n.Attr("style")
	property = strings.ToLower(property)
	for _, d := range parseStyle(raw) {
		if d.property == property {
			return d.value, true
		}
	}
	return "", false
}

// SetStyle sets an inline style property, keeping declaration order.
func (n *Node) SetStyle(property, value string) {
	raw, _ := n.Attr("style")
	decls := parseStyle(raw)
	property = strings.ToLower(property)
	replaced := false
	for i := range decls {
		if decls[i].property == property {
			decls[i].value = value
			replaced = true
		}
	}
	if !replaced {
		decls = append(decls, declaration{property: property, value: value})
	}
	n.SetAttribute("style", formatStyle(decls))
}

// RemoveStyle deletes an inline style property.
func (n *Node) RemoveStyle(property string) {
	raw, ok := n.Attr("style")
	if !ok {
		return
	}
	property = strings.ToLower(property)
	decls := parseStyle(raw)
	kept := decls[:0]
	for _, d := range decls {
		if d.property != property {
			kept = append(kept, d)
		}
	}
	if len(kept) == 0 {
		n.RemoveAttribute("style")
		return
	}
	n.SetAttribute("style", formatStyle(kept))
}
