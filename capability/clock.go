package capability

import (
	"context"
	"math"

	"github.com/dlclark/regexp2"

	"github.com/wippyai/wasm-bridge/imports"
	"github.com/wippyai/wasm-bridge/value"
)

func clock(opts Options) imports.Namespace {
	start := opts.Now()
	return imports.Namespace{
		// Milliseconds since the Unix epoch.
		"dateNow": imports.Returns(imports.F64, func(context.Context, imports.Env, []value.Value) (value.Value, error) {
			return float64(opts.Now().UnixMilli()), nil
		}),
		// Microseconds since the catalog was created.
		"performanceNow": imports.Returns(imports.F64, func(context.Context, imports.Env, []value.Value) (value.Value, error) {
			return float64(opts.Now().Sub(start).Nanoseconds()) / 1e3, nil
		}),
	}
}

var floatGrammar = regexp2.MustCompile(`^\s*[+-]?(?:Infinity|NaN|(?:\.\d+|\d+(?:\.\d*)?)(?:[eE][+-]?\d+)?)\s*$`, regexp2.ECMAScript)

// ParseFloat parses s as a decimal floating point literal with optional
// surrounding whitespace. Anything else, including hex and trailing
// garbage, is NaN.
func ParseFloat(s string) float64 {
	if ok, err := floatGrammar.MatchString(s); err != nil || !ok {
		return math.NaN()
	}
	return value.ParseNumber(s)
}

func numbers() imports.Namespace {
	return imports.Namespace{
		"parseFloat": imports.Returns(imports.F64, func(_ context.Context, _ imports.Env, args []value.Value) (value.Value, error) {
			return ParseFloat(value.ToString(args[0])), nil
		}, imports.Ref),
	}
}
