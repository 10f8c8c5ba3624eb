package hcl

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// decodeFlags evaluates a `flags = { ... }` expression into named booleans.
// The attribute is optional; a missing expression yields a nil map.
func decodeFlags(expr hcl.Expression) (map[string]bool, error) {
	if expr == nil {
		return nil, nil
	}

	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to evaluate flags: %w", diags)
	}
	if val.IsNull() {
		return nil, nil
	}

	converted, err := convert.Convert(val, cty.Map(cty.Bool))
	if err != nil {
		return nil, fmt.Errorf("flags must be a map of booleans: %w", err)
	}

	flags := make(map[string]bool)
	for it := converted.ElementIterator(); it.Next(); {
		k, v := it.Element()
		flags[k.AsString()] = v.True()
	}
	return flags, nil
}
