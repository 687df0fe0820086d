package value

// Object is a plain host object with insertion-ordered properties.
// Proto, when set, is consulted by Get and Has for missing keys.
type Object struct {
	props map[string]Value
	Proto *Object
	keys  []string
}

// NewObject creates an empty object.
func NewObject() *Object {
	return &Object{props: make(map[string]Value)}
}

// ObjectOf creates an object from alternating key, value pairs.
func ObjectOf(kv ...any) *Object {
	o := NewObject()
	for i := 0; i+1 < len(kv); i += 2 {
		o.Set(kv[i].(string), kv[i+1])
	}
	return o
}

// Get returns the property value, or undefined when absent.
func (o *Object) Get(key string) Value {
	for cur := o; cur != nil; cur = cur.Proto {
		if v, ok := cur.props[key]; ok {
			return v
		}
	}
	return Undefined
}

// Lookup returns the own property value and whether it exists.
func (o *Object) Lookup(key string) (Value, bool) {
	v, ok := o.props[key]
	return v, ok
}

// Set stores a property.
func (o *Object) Set(key string, v Value) {
	if o.props == nil {
		o.props = make(map[string]Value)
	}
	if _, ok := o.props[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.props[key] = v
}

// Has reports whether the property exists on the object or its prototype chain.
func (o *Object) Has(key string) bool {
	for cur := o; cur != nil; cur = cur.Proto {
		if _, ok := cur.props[key]; ok {
			return true
		}
	}
	return false
}

// Delete removes an own property.
func (o *Object) Delete(key string) bool {
	if _, ok := o.props[key]; !ok {
		return false
	}
	delete(o.props, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
	return true
}

// Keys returns own property names in insertion order.
func (o *Object) Keys() []string {
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

// Len returns the number of own properties.
func (o *Object) Len() int {
	return len(o.keys)
}
