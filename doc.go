// Package hotswap provides a host for components whose code is rebuilt and
// swapped in while the process keeps running.
//
// It offers:
// - a type-indexed Container for host-owned dependencies and frozen component state
// - the Factory protocol a dynamically loaded module exports under FactorySymbol
// - the Component capability set (Render, Freeze)
// - a Host that lazily loads the newest module artifact, freezes on reload and thaws into the next build
// - stale-module discovery by platform dylib naming convention
package hotswap
