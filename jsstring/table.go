package jsstring

import (
	"context"

	"github.com/wippyai/wasm-bridge/imports"
	"github.com/wippyai/wasm-bridge/value"
)

// Namespace is the reserved import module for string builtins.
const Namespace = "wasm:js-string"

// Native returns the builtin table. Code unit arrays move through linear
// memory a chunk at a time.
func Native() imports.Namespace {
	ns := common()
	ns["fromCharCodeArray"] = imports.Returns(imports.Ref, func(_ context.Context, env imports.Env, args []value.Value) (value.Value, error) {
		return ReadRegion(env.Memory(), u32(args[0]), u32(args[1]), u32(args[2]))
	}, imports.I32, imports.I32, imports.I32)
	ns["intoCharCodeArray"] = imports.Returns(imports.I32, func(_ context.Context, env imports.Env, args []value.Value) (value.Value, error) {
		s, err := Cast(args[0])
		if err != nil {
			return nil, err
		}
		return WriteRegion(env.Memory(), s, u32(args[1]), u32(args[2]))
	}, imports.Ref, imports.I32, imports.I32)
	return ns
}

// Polyfill returns the fallback table used when the artifact was compiled
// without the builtin. Code unit arrays are accessed one element at a time.
func Polyfill() imports.Namespace {
	ns := common()
	ns["fromCharCodeArray"] = imports.Returns(imports.Ref, func(ctx context.Context, env imports.Env, args []value.Value) (value.Value, error) {
		return ReadUnits(ctx, ArrayFor(env), u32(args[0]), u32(args[1]), u32(args[2]))
	}, imports.I32, imports.I32, imports.I32)
	ns["intoCharCodeArray"] = imports.Returns(imports.I32, func(ctx context.Context, env imports.Env, args []value.Value) (value.Value, error) {
		s, err := Cast(args[0])
		if err != nil {
			return nil, err
		}
		return WriteUnits(ctx, ArrayFor(env), s, u32(args[1]), u32(args[2]))
	}, imports.Ref, imports.I32, imports.I32)
	return ns
}

// Table returns the string table for an artifact, native when it was
// compiled with the builtin.
func Table(builtin bool) imports.Namespace {
	if builtin {
		return Native()
	}
	return Polyfill()
}

func u32(v value.Value) uint32 { return value.ToUint32(v) }

// withStrings decodes the first n arguments as strings before calling fn.
func withStrings(n int, fn func(s []string, rest []value.Value) (value.Value, error)) imports.Func {
	return func(_ context.Context, _ imports.Env, args []value.Value) (value.Value, error) {
		ss := make([]string, n)
		for i := range n {
			s, err := Cast(args[i])
			if err != nil {
				return nil, err
			}
			ss[i] = s
		}
		return fn(ss, args[n:])
	}
}

func common() imports.Namespace {
	const (
		ref = imports.Ref
		i32 = imports.I32
	)
	return imports.Namespace{
		"charCodeAt": imports.Returns(i32, withStrings(1, func(s []string, rest []value.Value) (value.Value, error) {
			u, err := CharCodeAt(s[0], u32(rest[0]))
			return uint32(u), err
		}), ref, i32),
		"codePointAt": imports.Returns(i32, withStrings(1, func(s []string, rest []value.Value) (value.Value, error) {
			return CodePointAt(s[0], u32(rest[0]))
		}), ref, i32),
		"compare": imports.Returns(i32, withStrings(2, func(s []string, _ []value.Value) (value.Value, error) {
			return Compare(s[0], s[1]), nil
		}), ref, ref),
		"concat": imports.Returns(ref, withStrings(2, func(s []string, _ []value.Value) (value.Value, error) {
			return Concat(s[0], s[1]), nil
		}), ref, ref),
		"equals": imports.Returns(imports.Bool, func(_ context.Context, _ imports.Env, args []value.Value) (value.Value, error) {
			a, aok := args[0].(string)
			b, bok := args[1].(string)
			if !aok || !bok {
				// Nullable: null equals only null.
				if args[0] == nil && args[1] == nil {
					return true, nil
				}
				if (args[0] == nil || aok) && (args[1] == nil || bok) {
					return false, nil
				}
				return nil, &value.TypeError{Msg: "equals expects strings"}
			}
			return Equals(a, b), nil
		}, ref, ref),
		"fromCharCode": imports.Returns(ref, func(_ context.Context, _ imports.Env, args []value.Value) (value.Value, error) {
			return FromCharCode(uint16(u32(args[0]))), nil
		}, i32),
		"fromCodePoint": imports.Returns(ref, func(_ context.Context, _ imports.Env, args []value.Value) (value.Value, error) {
			return FromCodePoint(u32(args[0]))
		}, i32),
		"length": imports.Returns(i32, withStrings(1, func(s []string, _ []value.Value) (value.Value, error) {
			return Length(s[0]), nil
		}), ref),
		"substring": imports.Returns(ref, withStrings(1, func(s []string, rest []value.Value) (value.Value, error) {
			return Substring(s[0], u32(rest[0]), u32(rest[1])), nil
		}), ref, i32, i32),
		"test": imports.Returns(imports.Bool, func(_ context.Context, _ imports.Env, args []value.Value) (value.Value, error) {
			return Test(args[0]), nil
		}, ref),
		"cast": imports.Returns(ref, func(_ context.Context, _ imports.Env, args []value.Value) (value.Value, error) {
			return Cast(args[0])
		}, ref),
	}
}
