package registry

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/livebind/internal/ctxlog"
	"github.com/zclconf/go-cty/cty/gocty"
)

var (
	expressionType = reflect.TypeOf((*hcl.Expression)(nil)).Elem()
	bodyType       = reflect.TypeOf((*hcl.Body)(nil)).Elem()
)

// ValidateRegistry checks that every native module can be instantiated:
// NewInput must return a pointer to InputType, and every `hcl` tagged field
// must have a type gohcl can decode into.
func (r *Registry) ValidateRegistry(ctx context.Context) error {
	var errs []string
	logger := ctxlog.FromContext(ctx)

	names := make([]string, 0, len(r.ModuleRegistry))
	for name := range r.ModuleRegistry {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		m := r.ModuleRegistry[name]
		if m.Fn == nil {
			errs = append(errs, fmt.Sprintf("module '%s': no Fn registered", name))
		}
		if m.NewInput == nil || m.InputType == nil {
			errs = append(errs, fmt.Sprintf("module '%s': NewInput and InputType are required", name))
			continue
		}
		if got := reflect.TypeOf(m.NewInput()); got != reflect.PointerTo(m.InputType) {
			errs = append(errs, fmt.Sprintf("module '%s': NewInput returns %s, want *%s", name, got, m.InputType))
			continue
		}
		if m.InputType.Kind() != reflect.Struct {
			errs = append(errs, fmt.Sprintf("module '%s': input type %s is not a struct", name, m.InputType))
			continue
		}

		for i := 0; i < m.InputType.NumField(); i++ {
			field := m.InputType.Field(i)
			if !field.IsExported() {
				continue
			}
			tag := field.Tag.Get("hcl")
			if tag == "" {
				logger.Warn("Native module input field has no hcl tag and will never be set.", "module", name, "field", field.Name)
				continue
			}
			parts := strings.Split(tag, ",")
			kind := "attr"
			if len(parts) > 1 {
				kind = parts[1]
			}
			switch kind {
			case "attr", "optional":
				if field.Type == expressionType {
					continue
				}
				if _, err := gocty.ImpliedType(reflect.Zero(field.Type).Interface()); err != nil {
					errs = append(errs, fmt.Sprintf("module '%s', input '%s': could not imply cty type from Go field type %s: %v", name, parts[0], field.Type, err))
				}
			case "remain":
				if field.Type != bodyType {
					errs = append(errs, fmt.Sprintf("module '%s': remain field %s must be an hcl.Body", name, field.Name))
				}
			default:
				errs = append(errs, fmt.Sprintf("module '%s', input '%s': blocks are not supported in module inputs", name, parts[0]))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}
