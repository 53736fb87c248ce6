package hotswap

import (
	"errors"
	"fmt"
)

var (
	// ErrSealed means inserting into a container that has been sealed.
	ErrSealed = errors.New("container is sealed")

	// ErrClosed means using a Host after Close.
	ErrClosed = errors.New("host is closed")
)

// DependencyNotFoundError means a required key is absent from a container.
// Inside a factory it signals a host/module version mismatch.
type DependencyNotFoundError struct {
	Key string
}

func (e DependencyNotFoundError) Error() string {
	return fmt.Sprintf("dependency not found: %s", e.Key)
}

// TypeMismatchError means a stored value does not have the key's value type.
type TypeMismatchError struct {
	Key      string
	Expected string
	Actual   string
}

func (e TypeMismatchError) Error() string {
	return fmt.Sprintf("value type mismatch for %s: expected=%s actual=%s",
		e.Key, e.Expected, e.Actual)
}

// ArtifactNotFoundError means discovery found no matching module artifact.
type ArtifactNotFoundError struct {
	Dir  string
	Name string
	Ext  string
}

func (e ArtifactNotFoundError) Error() string {
	return fmt.Sprintf("module artifact not found: dir=%q name=%q ext=%q", e.Dir, e.Name, e.Ext)
}

// SymbolNotFoundError means the module does not export the factory symbol.
type SymbolNotFoundError struct {
	Path   string
	Symbol string
	Err    error
}

func (e SymbolNotFoundError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("symbol %s not found in %s", e.Symbol, e.Path)
	}
	return fmt.Sprintf("symbol %s not found in %s: %v", e.Symbol, e.Path, e.Err)
}

func (e SymbolNotFoundError) Unwrap() error {
	return e.Err
}

// SymbolTypeError means the factory symbol exists but has the wrong type.
type SymbolTypeError struct {
	Symbol string
	Actual string
}

func (e SymbolTypeError) Error() string {
	return fmt.Sprintf("symbol %s has type %s, want hotswap.Factory", e.Symbol, e.Actual)
}

// Stage names one step of bringing a component up.
type Stage string

const (
	StageDiscover  Stage = "discover"
	StageOpen      Stage = "open"
	StageResolve   Stage = "resolve"
	StageConstruct Stage = "construct"
)

// StepError identifies which lifecycle stage failed.
type StepError struct {
	Stage Stage
	Path  string
	Err   error

	transient bool
}

func (e *StepError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s module: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s module %s: %v", e.Stage, e.Path, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a failure the Host will retry on the
// next Step. Only discovery and open failures are transient, and only when
// the Host runs with Options.Retry.
func IsTransient(err error) bool {
	var se *StepError
	if errors.As(err, &se) {
		return se.transient
	}
	return false
}
