package output

import (
	"fmt"

	"github.com/itchyny/gojq"
)

// Filter is a compiled jq expression applied to the JSON envelope.
type Filter struct {
	expr string
	code *gojq.Code
}

// ParseFilter compiles a jq expression.
func ParseFilter(expr string) (*Filter, error) {
	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, ErrUsageHint(fmt.Sprintf("Invalid --jq expression: %v", err), "See https://jqlang.github.io/jq/manual/")
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, ErrUsageHint(fmt.Sprintf("Invalid --jq expression: %v", err), "See https://jqlang.github.io/jq/manual/")
	}
	return &Filter{expr: expr, code: code}, nil
}

// String returns the source expression.
func (f *Filter) String() string {
	return f.expr
}

// Apply runs the filter over v and collects every result.
func (f *Filter) Apply(v any) ([]any, error) {
	input := NormalizeData(v)

	var results []any
	iter := f.code.Run(input)
	for {
		r, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := r.(error); ok {
			if haltErr, ok := err.(*gojq.HaltError); ok && haltErr.Value() == nil {
				break
			}
			return nil, ErrUsage(fmt.Sprintf("--jq %s: %v", f.expr, err))
		}
		results = append(results, r)
	}
	return results, nil
}
