package vm

import (
	"fmt"
	stdplugin "plugin"
)

// loadedLibrary wraps the stdlib plugin handle for a dynamically
// loaded native library. Go's ecosystem has no third-party
// cross-platform dlopen binding in active use among these dependencies
// (cgo-based ones bring a build-system cost a scripting-language VM
// shouldn't impose on embedders); plugin is Linux/macOS-only but is
// the only way to pull symbols out of a .so built by a separate `go
// build -buildmode=plugin` without cgo.
type loadedLibrary struct {
	p *stdplugin.Plugin
}

// LoadLibrary opens path and returns a heap-ready NativeLibrary handle.
func LoadLibrary(path string) (*NativeLibrary, error) {
	p, err := stdplugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load library %s: %w", path, err)
	}
	return &NativeLibrary{Path: path, loader: &loadedLibrary{p: p}}, nil
}

// LoadFunction resolves name inside lib as a symbol of type NativeFunc.
func LoadFunction(lib *NativeLibrary, name string) (NativeFunc, error) {
	if lib == nil || lib.loader == nil {
		return nil, fmt.Errorf("library not loaded")
	}
	sym, err := lib.loader.p.Lookup(name)
	if err != nil {
		return nil, fmt.Errorf("load function %s from %s: %w", name, lib.Path, err)
	}
	fn, ok := sym.(func(*Params) (Value, error))
	if !ok {
		if fnp, ok2 := sym.(*NativeFunc); ok2 {
			return *fnp, nil
		}
		return nil, fmt.Errorf("symbol %s in %s is not a NativeFunc", name, lib.Path)
	}
	return NativeFunc(fn), nil
}
