package hotswap

import (
	"fmt"
)

// FactorySymbol is the exported symbol every loadable module must provide.
const FactorySymbol = "ModuleFactory"

// Component is the capability set of a reloadable component.
//
// Render performs one step and must return within a frame budget.
// Freeze consumes the component and returns the state that should survive
// a reload. The Host calls Freeze at most once and never uses the component
// afterwards. Frozen values must be plain data: anything backed by the
// module's code is invalid once the module is released.
type Component interface {
	Render()
	Freeze() *Container
}

// Factory constructs a component from host dependencies and, optionally,
// frozen state left behind by the previous instance.
//
// deps must not be retained after the call. frozen is owned by the factory;
// it is nil on a first load and unrecognized entries are ignored.
type Factory func(deps *Container, frozen *Container) (Component, error)

// AsFactory converts a symbol looked up in a module into a Factory.
// Modules may export a function with the Factory signature or a variable of
// type Factory.
func AsFactory(sym any) (Factory, error) {
	switch f := sym.(type) {
	case Factory:
		if f != nil {
			return f, nil
		}
	case *Factory:
		if f != nil && *f != nil {
			return *f, nil
		}
	case func(*Container, *Container) (Component, error):
		if f != nil {
			return f, nil
		}
	case *func(*Container, *Container) (Component, error):
		if f != nil && *f != nil {
			return *f, nil
		}
	}
	return nil, SymbolTypeError{
		Symbol: FactorySymbol,
		Actual: fmt.Sprintf("%T", sym),
	}
}

// Directive is the per-tick decision of the surrounding loop.
type Directive int

const (
	None Directive = iota
	Reload
)

func (d Directive) String() string {
	switch d {
	case None:
		return "none"
	case Reload:
		return "reload"
	default:
		return fmt.Sprintf("directive(%d)", int(d))
	}
}

// State is the Host lifecycle state.
type State int

const (
	Unloaded State = iota
	Loaded
)

func (s State) String() string {
	if s == Loaded {
		return "loaded"
	}
	return "unloaded"
}
