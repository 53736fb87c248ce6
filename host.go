package hotswap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Module is an open dynamic module.
type Module interface {
	Path() string
	Lookup(symbol string) (any, error)
	// Close releases the host's hold on the module. No code from the module
	// may run afterwards.
	Close() error
}

// Loader opens module artifacts.
type Loader interface {
	Open(ctx context.Context, path string) (Module, error)
}

// Options configures where a Host looks for its module and how it reacts to
// a missing or unopenable artifact.
//
// Dir and Name are required. Ext overrides DylibExt(). With Retry unset any
// failure is returned as final and the caller is expected to stop; with
// Retry set, discovery and open failures are reported as transient (see
// IsTransient), pending frozen state is kept and the next Step tries again.
type Options struct {
	Dir    string
	Name   string
	Ext    string
	Retry  bool
	Logger *slog.Logger
}

// Host owns the currently loaded module, the component constructed from it
// and the frozen state waiting for the next construction.
//
// Host is not safe for concurrent use; it is driven by one loop.
type Host struct {
	deps   *Container
	loader Loader
	opts   Options
	logger *slog.Logger

	module    Module
	artifact  Artifact
	component Component
	frozen    *Container

	generation int
	closed     bool
}

// NewHost seals deps and returns a Host in the Unloaded state.
func NewHost(deps *Container, loader Loader, opts Options) (*Host, error) {
	if deps == nil {
		return nil, fmt.Errorf("new host: deps is nil")
	}
	if loader == nil {
		return nil, fmt.Errorf("new host: loader is nil")
	}
	if opts.Dir == "" {
		return nil, fmt.Errorf("new host: dir is empty")
	}
	if opts.Name == "" {
		return nil, fmt.Errorf("new host: name is empty")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Host{
		deps:   deps.Seal(),
		loader: loader,
		opts:   opts,
		logger: logger.With("module", opts.Name),
	}, nil
}

// Step runs one loop tick. It constructs the component if none is live,
// hands it to fn, and applies the directive fn returns. fn is never called
// without a constructed component.
func Step[R any](ctx context.Context, h *Host, fn func(Component) (R, Directive)) (R, error) {
	var zero R
	if fn == nil {
		return zero, fmt.Errorf("step: fn is nil")
	}
	component, err := h.ensure(ctx)
	if err != nil {
		return zero, err
	}

	r, directive := fn(component)
	if directive == Reload {
		if err := h.Reload(); err != nil {
			return r, err
		}
	}
	return r, nil
}

// Render is Step for loops that only render and decide.
func (h *Host) Render(ctx context.Context, decide func() Directive) error {
	_, err := Step(ctx, h, func(c Component) (struct{}, Directive) {
		c.Render()
		if decide == nil {
			return struct{}{}, None
		}
		return struct{}{}, decide()
	})
	return err
}

// Reload freezes the live component, keeps its state as the pending frozen
// state (replacing any older one), drops the component and then closes the
// module. The next Step rediscovers and reloads.
func (h *Host) Reload() error {
	if h.closed {
		return ErrClosed
	}
	if h.component != nil {
		h.logger.Info("freezing component", "generation", h.generation)
		frozen := h.component.Freeze()
		h.component = nil
		h.frozen = frozen
		h.logger.Debug("component frozen", "frozen", frozen.Len(), "keys", frozen.Keys())
	}
	return h.dropModule()
}

// Close drops the component without freezing it and closes the module.
func (h *Host) Close() error {
	if h.closed {
		return nil
	}
	h.component = nil
	h.frozen = nil
	err := h.dropModule()
	h.closed = true
	return err
}

func (h *Host) State() State {
	if h.component != nil {
		return Loaded
	}
	return Unloaded
}

// Generation counts successful constructions.
func (h *Host) Generation() int {
	return h.generation
}

// Pending reports whether frozen state is waiting for the next construction.
func (h *Host) Pending() bool {
	return h.frozen != nil
}

// Artifact returns the artifact the open module was loaded from.
func (h *Host) Artifact() (Artifact, bool) {
	if h.module == nil {
		return Artifact{}, false
	}
	return h.artifact, true
}

func (h *Host) ensure(ctx context.Context) (Component, error) {
	if h.closed {
		return nil, ErrClosed
	}
	if h.component != nil {
		return h.component, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if h.module == nil {
		if err := h.openLatest(ctx); err != nil {
			return nil, err
		}
	}

	path := h.module.Path()
	sym, err := h.module.Lookup(FactorySymbol)
	if err != nil {
		return nil, h.abort(&StepError{
			Stage: StageResolve,
			Path:  path,
			Err:   SymbolNotFoundError{Path: path, Symbol: FactorySymbol, Err: err},
		})
	}
	factory, err := AsFactory(sym)
	if err != nil {
		return nil, h.abort(&StepError{Stage: StageResolve, Path: path, Err: err})
	}

	frozen := h.frozen
	h.frozen = nil
	h.logger.Info("constructing component",
		"deps", h.deps.Len(),
		"frozen", frozen.Len(),
		"thawing", frozen != nil)

	component, err := construct(factory, h.deps, frozen)
	if err != nil {
		return nil, h.abort(&StepError{Stage: StageConstruct, Path: path, Err: err})
	}
	h.component = component
	h.generation++
	return component, nil
}

func (h *Host) openLatest(ctx context.Context) error {
	artifact, ok, err := FindLatest(h.opts.Dir, h.opts.Name, h.opts.Ext)
	if err == nil && !ok {
		err = ArtifactNotFoundError{Dir: h.opts.Dir, Name: h.opts.Name, Ext: h.opts.Ext}
	}
	if err != nil {
		return h.fail(&StepError{Stage: StageDiscover, Err: err, transient: h.opts.Retry})
	}

	h.logger.Info("loading module",
		"path", artifact.Path,
		"modified", artifact.ModTime.Format(time.RFC3339Nano))
	module, err := h.loader.Open(ctx, artifact.Path)
	if err != nil {
		return h.fail(&StepError{Stage: StageOpen, Path: artifact.Path, Err: err, transient: h.opts.Retry})
	}
	h.module = module
	h.artifact = artifact
	return nil
}

func (h *Host) fail(err *StepError) error {
	if err.transient {
		h.logger.Warn("module unavailable, retrying next step", "stage", err.Stage, "err", err.Err)
	}
	return err
}

// abort drops a module that cannot produce a component. These failures are
// never transient.
func (h *Host) abort(err *StepError) error {
	if closeErr := h.dropModule(); closeErr != nil {
		return errors.Join(err, closeErr)
	}
	return err
}

func (h *Host) dropModule() error {
	if h.module == nil {
		return nil
	}
	// The component must already be gone: its code lives in the module.
	if h.component != nil {
		panic("hotswap: dropping module while its component is live")
	}
	module := h.module
	h.module = nil
	h.artifact = Artifact{}
	h.logger.Debug("closing module", "path", module.Path())
	if err := module.Close(); err != nil {
		return fmt.Errorf("close module %s: %w", module.Path(), err)
	}
	return nil
}

func construct(factory Factory, deps, frozen *Container) (component Component, err error) {
	defer func() {
		if r := recover(); r != nil {
			component = nil
			err = fmt.Errorf("factory panicked: %v", r)
		}
	}()
	component, err = factory(deps, frozen)
	if err != nil {
		return nil, err
	}
	if component == nil {
		return nil, fmt.Errorf("factory returned nil component")
	}
	return component, nil
}
