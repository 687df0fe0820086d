package marshal

import "github.com/wippyai/wasm-bridge/value"

// Tag is the closed classification of a host value the sandbox decodes.
// The numbering is part of the import ABI.
type Tag uint8

const (
	TagUndefined         Tag = 1
	TagBool              Tag = 2
	TagNumber            Tag = 3
	TagString            Tag = 4
	TagList              Tag = 5
	TagInt8Array         Tag = 6
	TagUint8Array        Tag = 7
	TagUint8ClampedArray Tag = 8
	TagInt16Array        Tag = 9
	TagUint16Array       Tag = 10
	TagInt32Array        Tag = 11
	TagUint32Array       Tag = 12
	TagFloat32Array      Tag = 13
	TagFloat64Array      Tag = 14
	TagDataView          Tag = 15
	TagArrayBuffer       Tag = 16
	TagSharedArrayBuffer Tag = 17
	TagFuture            Tag = 18
	TagOther             Tag = 19
	TagBigInt64Array     Tag = 20
	TagBigUint64Array    Tag = 21
)

var viewTags = [...]Tag{
	value.Int8:         TagInt8Array,
	value.Uint8:        TagUint8Array,
	value.Uint8Clamped: TagUint8ClampedArray,
	value.Int16:        TagInt16Array,
	value.Uint16:       TagUint16Array,
	value.Int32:        TagInt32Array,
	value.Uint32:       TagUint32Array,
	value.Float32:      TagFloat32Array,
	value.Float64:      TagFloat64Array,
	value.BigInt64:     TagBigInt64Array,
	value.BigUint64:    TagBigUint64Array,
}

// Classify returns the tag of v. Null, bigints and functions are TagOther.
func Classify(v value.Value) Tag {
	switch x := v.(type) {
	case value.UndefinedType:
		return TagUndefined
	case bool:
		return TagBool
	case float64, int, int32, uint32:
		return TagNumber
	case string:
		return TagString
	case *value.Array:
		return TagList
	case *value.TypedArray:
		return viewTags[x.Kind()]
	case *value.DataView:
		return TagDataView
	case *value.ArrayBuffer:
		if x.Shared() {
			return TagSharedArrayBuffer
		}
		return TagArrayBuffer
	case *value.Future:
		return TagFuture
	default:
		return TagOther
	}
}

func (t Tag) String() string {
	switch t {
	case TagUndefined:
		return "undefined"
	case TagBool:
		return "boolean"
	case TagNumber:
		return "number"
	case TagString:
		return "string"
	case TagList:
		return "list"
	case TagDataView:
		return "DataView"
	case TagArrayBuffer:
		return "ArrayBuffer"
	case TagSharedArrayBuffer:
		return "SharedArrayBuffer"
	case TagFuture:
		return "future"
	case TagOther:
		return "other"
	}
	for k, vt := range viewTags {
		if vt == t {
			return value.ElementKind(k).String()
		}
	}
	return "invalid"
}
