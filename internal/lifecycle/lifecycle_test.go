package lifecycle

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/zerosystem/internal/collector"
	"github.com/vk/zerosystem/internal/registry"
)

// recorder is a module taking part in every phase.
type recorder struct {
	root  *Root
	calls []string
	fail  error
}

func (m *recorder) Boot(_ context.Context, root *Root) error {
	m.calls = append(m.calls, "boot")
	return m.fail
}

func (m *recorder) Init(_ context.Context, root *Root) error {
	m.calls = append(m.calls, "init")
	return nil
}

func (m *recorder) Setup(_ context.Context, _ *Root, name string, arg any) error {
	m.calls = append(m.calls, "setup:"+name+":"+arg.(string))
	return nil
}

// bootOnly implements Booter alone.
type bootOnly struct{ booted bool }

func (m *bootOnly) Boot(context.Context, *Root) error {
	m.booted = true
	return nil
}

func newRoot(t *testing.T, defs ...collector.Definition) *Root {
	t.Helper()
	reg := registry.New()
	root, err := New(reg, "/srv/app")
	require.NoError(t, err)
	reg.AddCollector(collector.NewModule(defs...))
	return root
}

func moduleObject[T any](t *testing.T, root *Root, name string) T {
	t.Helper()
	obj, err := root.Registry().Get(context.Background(), "module."+name)
	require.NoError(t, err)
	return obj.(T)
}

func TestPhases_RunModulesAndCallbacks(t *testing.T) {
	ctx := context.Background()
	root := newRoot(t,
		collector.Definition{Name: "rec", WithRoot: func(r any) (any, error) {
			return &recorder{root: r.(*Root)}, nil
		}},
		collector.Definition{Name: "boot", Construct: func() (any, error) { return &bootOnly{}, nil }},
	)
	var callbackArgs []any
	root.On(Boot, func(_ context.Context, _ *Root, arg any) error {
		callbackArgs = append(callbackArgs, arg)
		return nil
	})
	root.OnSetup("socket", func(_ context.Context, _ *Root, arg any) error {
		callbackArgs = append(callbackArgs, arg)
		return nil
	})

	// Act
	require.NoError(t, root.Boot(ctx))
	require.NoError(t, root.Init(ctx))
	require.NoError(t, root.Setup(ctx, "socket", "srv"))
	require.NoError(t, root.Setup(ctx, "other", "x"))

	// Assert
	rec := moduleObject[*recorder](t, root, "rec")
	assert.Same(t, root, rec.root, "modules built WithRoot receive the root")
	assert.Equal(t, []string{"boot", "init", "setup:socket:srv", "setup:other:x"}, rec.calls)
	assert.True(t, moduleObject[*bootOnly](t, root, "boot").booted)
	assert.Equal(t, []any{nil, "srv"}, callbackArgs)
}

func TestPhases_CollectErrors(t *testing.T) {
	ctx := context.Background()
	root := newRoot(t,
		collector.Definition{Name: "bad", Construct: func() (any, error) {
			return &recorder{fail: errors.New("disk full")}, nil
		}},
		collector.Definition{Name: "broken"},
	)
	root.On(Boot, func(context.Context, *Root, any) error { return errors.New("callback failed") })

	err := root.Boot(ctx)

	require.Error(t, err)
	assert.ErrorContains(t, err, "module module.bad: disk full")
	assert.ErrorIs(t, err, registry.ErrNoConstructor)
	assert.ErrorContains(t, err, "callback failed")
}

func TestNew_SingleRootPerRegistry(t *testing.T) {
	reg := registry.New()
	_, err := New(reg, ".")
	require.NoError(t, err)

	_, err = New(reg, ".")
	var dup *registry.DuplicateSingletonError
	assert.ErrorAs(t, err, &dup)
}

func TestRoot_Path(t *testing.T) {
	root, err := New(registry.New(), "/srv/app")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/srv/app", "descriptors", "a.hcl"), root.Path("descriptors", "a.hcl"))
	assert.Equal(t, "setup", Setup.String())
}
