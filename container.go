package hotswap

import (
	"fmt"
	"reflect"
	"sort"
)

// Key identifies one entry of a Container and fixes the type of its value.
//
// A key's identity is its marker type, so keys declared in a package shared
// by host and module stay equal across reloads. Two keys built from the same
// marker with different value types collide; marker types should be
// unexported and used for exactly one key.
type Key[V any] struct {
	marker reflect.Type
}

// KeyOf returns the key identified by marker type M holding values of type V.
func KeyOf[M any, V any]() Key[V] {
	return Key[V]{marker: reflect.TypeFor[M]()}
}

func (k Key[V]) String() string {
	if k.marker == nil {
		return "<zero key>"
	}
	return k.marker.String()
}

// Container is a type-indexed heterogeneous map.
//
// The host uses one sealed Container for dependencies it injects into
// factories, and components return a fresh Container from Freeze.
// A nil *Container reads as empty. Container is not safe for concurrent
// mutation; a sealed Container may be read from any goroutine.
type Container struct {
	values map[reflect.Type]any
	sealed bool
}

func NewContainer() *Container {
	return &Container{
		values: make(map[reflect.Type]any),
	}
}

// Len returns the number of entries.
func (c *Container) Len() int {
	if c == nil {
		return 0
	}
	return len(c.values)
}

// Keys returns the marker type names of all entries, sorted.
func (c *Container) Keys() []string {
	if c == nil {
		return nil
	}
	keys := make([]string, 0, len(c.values))
	for t := range c.values {
		keys = append(keys, t.String())
	}
	sort.Strings(keys)
	return keys
}

// Seal makes the container read-only. Sealing twice is a no-op.
func (c *Container) Seal() *Container {
	if c != nil {
		c.sealed = true
	}
	return c
}

func (c *Container) Sealed() bool {
	return c != nil && c.sealed
}

// Insert stores value under key, replacing any previous value.
func Insert[V any](c *Container, key Key[V], value V) error {
	if c == nil {
		return fmt.Errorf("insert %s: container is nil", key)
	}
	if key.marker == nil {
		return fmt.Errorf("insert: key is zero")
	}
	if c.sealed {
		return fmt.Errorf("insert %s: %w", key, ErrSealed)
	}
	if c.values == nil {
		c.values = make(map[reflect.Type]any)
	}
	c.values[key.marker] = value
	return nil
}

// MustInsert panics on insert error; intended for bootstrap code paths.
func MustInsert[V any](c *Container, key Key[V], value V) {
	if err := Insert(c, key, value); err != nil {
		panic(err)
	}
}

// Find returns the value stored under key. A value of the wrong type is
// reported as absent.
func Find[V any](c *Container, key Key[V]) (V, bool) {
	v, err := Require(c, key)
	return v, err == nil
}

// Require is like Find but reports why the value is unavailable.
func Require[V any](c *Container, key Key[V]) (V, error) {
	var zero V
	if c == nil || key.marker == nil {
		return zero, DependencyNotFoundError{Key: key.String()}
	}
	raw, ok := c.values[key.marker]
	if !ok {
		return zero, DependencyNotFoundError{Key: key.String()}
	}
	typed, ok := raw.(V)
	if !ok {
		return zero, TypeMismatchError{
			Key:      key.String(),
			Expected: reflect.TypeFor[V]().String(),
			Actual:   fmt.Sprintf("%T", raw),
		}
	}
	return typed, nil
}

// Take returns the value stored under key and removes it. Sealed containers
// are never modified; Take on them behaves like Find.
func Take[V any](c *Container, key Key[V]) (V, bool) {
	v, ok := Find(c, key)
	if ok && !c.sealed {
		delete(c.values, key.marker)
	}
	return v, ok
}
