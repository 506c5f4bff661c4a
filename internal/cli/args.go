package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/idmap/internal/model"
)

// parseKeyValues turns name=value arguments into a keyed tuple. Values of
// declared fields are converted to the field's type; undeclared names are
// kept as strings so the store can reject them.
func parseKeyValues(fields []model.FieldSpec, args []string) (model.Keyed, error) {
	byName := make(map[string]model.FieldSpec, len(fields))
	for _, f := range fields {
		byName[f.Name] = f
	}

	out := make(model.Keyed, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, &ExitError{Code: ExitCommandError, ErrCode: ErrCodeArguments,
				Message: fmt.Sprintf("invalid argument %q: want name=value", arg)}
		}
		if _, dup := out[name]; dup {
			return nil, &ExitError{Code: ExitCommandError, ErrCode: ErrCodeArguments,
				Message: fmt.Sprintf("field %q given more than once", name)}
		}
		if f, declared := byName[name]; declared {
			out[name] = f.Coerce(value)
		} else {
			out[name] = value
		}
	}
	return out, nil
}

// formatKeyed renders a keyed tuple as name=value pairs in the order of
// fields, followed by any undeclared names in sorted order.
func formatKeyed(fields []model.FieldSpec, k model.Keyed) string {
	if len(k) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(k))
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		seen[f.Name] = true
		if v, ok := k[f.Name]; ok {
			parts = append(parts, fmt.Sprintf("%s=%s", f.Name, model.Strval(v)))
		}
	}
	var rest []string
	for name := range k {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		parts = append(parts, fmt.Sprintf("%s=%s", name, model.Strval(k[name])))
	}
	return strings.Join(parts, " ")
}

func fieldNames(fields []model.FieldSpec) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}
