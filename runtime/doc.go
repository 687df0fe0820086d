// Package runtime loads and instantiates sandboxed modules.
//
//	rt, err := runtime.New(ctx, nil)
//	if err != nil {
//	    return err
//	}
//	defer rt.Close(ctx)
//
//	art, err := rt.CompileStreaming(ctx, file)
//	if err != nil {
//	    return err // errors.ErrCompilation
//	}
//	inst, err := art.Instantiate(ctx, extra, runtime.Options{})
//	if err != nil {
//	    return err // errors.ErrInstantiation, wrapping MissingImportsError
//	}
//	defer inst.Close(ctx)
//
//	_, err = inst.InvokeMain(ctx, "arg")
//
// # Import object
//
// Every instance gets its own host modules. The "bridge" namespace holds
// the fixed slots (handles, properties, buffers, capabilities, callbacks
// and fragment loading), "wasm:js-string" holds the string table and any
// other namespace comes from the caller. Root imports of type
// (i32) -> externref that the module also exports as a trampoline
// (i32, i32, externref...) become callback wrapper generators.
//
// # Fragments
//
// loadDeferred and loadDynamicModule bind further modules to a live
// instance. Fragments import the main module's exports from "module0";
// dynamic modules also see their auxiliary object's functions under
// "dynamic".
package runtime
