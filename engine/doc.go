// Package engine is the thin wazero layer under the bridge.
//
// An Engine owns one wazero runtime configured with a shared compilation
// cache and an optional memory limit. Host modules are built per instance
// and instantiated anonymously, so two instances of the same compiled
// module never share host state. Guest modules are instantiated with an
// import resolver that maps each import module name to those host modules.
//
// Memory adapts wazero linear memory to the error-returning accessors the
// marshaller expects.
package engine
