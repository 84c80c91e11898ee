package ctxmodule

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/specialistvlad/livebind/internal/hclexpr"
)

type declKind int

const (
	declAttr declKind = iota
	declImport
	declCell
	declComputed
	declHandler
	declRef
	declCollection
)

func (k declKind) String() string {
	switch k {
	case declImport:
		return "import"
	case declCell:
		return "cell"
	case declComputed:
		return "computed"
	case declHandler:
		return "handler"
	case declRef:
		return "ref"
	case declCollection:
		return "collection"
	default:
		return "attribute"
	}
}

// declaration is one exported name of a context script.
type declaration struct {
	name string
	kind declKind
	rng  hcl.Range

	// value is the attribute value, cell initial value or computed value.
	value hcl.Expression
	set   hcl.Expression
	log   hcl.Expression
	// source is the import specifier.
	source string

	// names lists every root variable the declaration's expressions read.
	names []string
	// deps are the local declarations that must exist before this one.
	deps []string
}

var declSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "import", LabelNames: []string{"name"}},
		{Type: "cell", LabelNames: []string{"name"}},
		{Type: "computed", LabelNames: []string{"name"}},
		{Type: "handler", LabelNames: []string{"name"}},
		{Type: "ref", LabelNames: []string{"name"}},
		{Type: "collection", LabelNames: []string{"name"}},
	},
}

var blockSchemas = map[string]*hcl.BodySchema{
	"cell":       {Attributes: []hcl.AttributeSchema{{Name: "initial"}}},
	"computed":   {Attributes: []hcl.AttributeSchema{{Name: "value", Required: true}}},
	"handler":    {Attributes: []hcl.AttributeSchema{{Name: "set"}, {Name: "log"}}},
	"ref":        {},
	"collection": {},
}

type importBlock struct {
	Source string `hcl:"source"`
}

// parseDeclarations reads every declaration in body. Attributes and blocks
// share one namespace.
func parseDeclarations(body hcl.Body) ([]*declaration, hcl.Diagnostics) {
	content, remain, diags := body.PartialContent(declSchema)
	attrs, attrDiags := remain.JustAttributes()
	diags = append(diags, attrDiags...)

	var decls []*declaration
	seen := make(map[string]hcl.Range)
	add := func(d *declaration) {
		if prev, ok := seen[d.name]; ok {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Duplicate declaration",
				Detail:   fmt.Sprintf("%q was already declared at %s.", d.name, prev),
				Subject:  d.rng.Ptr(),
			})
			return
		}
		seen[d.name] = d.rng
		decls = append(decls, d)
	}

	for name, attr := range attrs {
		add(&declaration{name: name, kind: declAttr, rng: attr.Range, value: attr.Expr})
	}

	for _, block := range content.Blocks {
		d := &declaration{name: block.Labels[0], rng: block.DefRange}
		if block.Type == "import" {
			var ib importBlock
			diags = append(diags, gohcl.DecodeBody(block.Body, nil, &ib)...)
			d.kind = declImport
			d.source = ib.Source
			add(d)
			continue
		}

		bc, bodyDiags := block.Body.Content(blockSchemas[block.Type])
		diags = append(diags, bodyDiags...)
		switch block.Type {
		case "cell":
			d.kind = declCell
			if a, ok := bc.Attributes["initial"]; ok {
				d.value = a.Expr
			}
		case "computed":
			d.kind = declComputed
			if a, ok := bc.Attributes["value"]; ok {
				d.value = a.Expr
			}
		case "handler":
			d.kind = declHandler
			if a, ok := bc.Attributes["set"]; ok {
				d.set = a.Expr
			}
			if a, ok := bc.Attributes["log"]; ok {
				d.log = a.Expr
			}
		case "ref":
			d.kind = declRef
		case "collection":
			d.kind = declCollection
		}
		add(d)
	}
	return decls, diags
}

// analyze fills names and deps and rejects unknown functions.
func analyze(decls []*declaration, functions map[string]struct{}) hcl.Diagnostics {
	local := make(map[string]bool, len(decls))
	for _, d := range decls {
		local[d.name] = true
	}

	var diags hcl.Diagnostics
	for _, d := range decls {
		c := hclexpr.NewContainer(d.value, d.set, d.log)
		d.names = c.RootNames()
		for _, fn := range c.CalledFunctions() {
			if _, ok := functions[fn]; !ok {
				diags = append(diags, &hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Call to unknown function",
					Detail:   fmt.Sprintf("%s %q calls %q, which is not available.", d.kind, d.name, fn),
					Subject:  d.rng.Ptr(),
				})
			}
		}
		// Handlers run later against the finished scope and may refer to
		// anything, including themselves.
		if d.kind == declHandler {
			continue
		}
		for _, n := range d.names {
			if n != d.name && local[n] {
				d.deps = append(d.deps, n)
			}
		}
	}
	return diags
}

// order sorts decls so that every declaration follows its dependencies,
// keeping source order otherwise. rank orders files.
func order(decls []*declaration, rank map[string]int) ([]*declaration, error) {
	sort.SliceStable(decls, func(i, j int) bool {
		a, b := decls[i].rng, decls[j].rng
		if rank[a.Filename] != rank[b.Filename] {
			return rank[a.Filename] < rank[b.Filename]
		}
		return a.Start.Byte < b.Start.Byte
	})

	indegree := make(map[string]int, len(decls))
	dependents := make(map[string][]string)
	for _, d := range decls {
		indegree[d.name] = len(d.deps)
		for _, dep := range d.deps {
			dependents[dep] = append(dependents[dep], d.name)
		}
	}

	out := make([]*declaration, 0, len(decls))
	done := make(map[string]bool, len(decls))
	for len(out) < len(decls) {
		progressed := false
		for _, d := range decls {
			if done[d.name] || indegree[d.name] > 0 {
				continue
			}
			done[d.name] = true
			out = append(out, d)
			for _, next := range dependents[d.name] {
				indegree[next]--
			}
			progressed = true
			break
		}
		if !progressed {
			var cycle []string
			for _, d := range decls {
				if !done[d.name] {
					cycle = append(cycle, d.name)
				}
			}
			return nil, fmt.Errorf("declaration cycle between %s", strings.Join(cycle, ", "))
		}
	}
	return out, nil
}
