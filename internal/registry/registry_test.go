package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter struct {
	n int
}

func (c *counter) Add(ctx context.Context, a, b int) (int, error) {
	c.n++
	return a + b, nil
}

func (c *counter) Fail() error {
	return errors.New("failed on purpose")
}

type point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (c *counter) Sum(p point) int {
	return p.X + p.Y
}

// testCollector records how often it ran and builds instances with a marker.
type testCollector struct {
	prefix string
	runs   int
	locals []string
}

func (c *testCollector) Prefix() string { return c.prefix }

func (c *testCollector) Collect(_ context.Context, s *Scope) error {
	c.runs++
	for _, local := range c.locals {
		s.Add(local).SetConstruct(func() (any, error) { return &counter{}, nil })
	}
	return nil
}

func (c *testCollector) Factory(_ context.Context, e *Entry, construct Constructor) (any, error) {
	obj, err := construct()
	if err != nil {
		return nil, err
	}
	obj.(*counter).n = 100
	return obj, nil
}

func newCounter() (any, error) { return &counter{}, nil }

func TestObject_IdempotentUnlessVolatile(t *testing.T) {
	ctx := context.Background()
	reg := New()
	reg.Add("stable").SetConstruct(newCounter)
	reg.Add("volatile").SetConstruct(newCounter).SetVolatile(true)

	a, err := reg.Get(ctx, "stable")
	require.NoError(t, err)
	b, err := reg.Get(ctx, "stable")
	require.NoError(t, err)
	assert.Same(t, a, b)

	c, err := reg.Get(ctx, "volatile")
	require.NoError(t, err)
	assert.False(t, reg.Entry("volatile").Resolved(), "volatile instance must be evicted after the read")
	d, err := reg.Get(ctx, "volatile")
	require.NoError(t, err)
	assert.NotSame(t, c, d)
}

func TestObject_ResolutionOrder(t *testing.T) {
	ctx := context.Background()
	reg := New()
	col := &testCollector{prefix: "svc"}
	reg.AddCollector(col)

	t.Run("own factory wins over collector", func(t *testing.T) {
		var gotConstruct Constructor
		e := reg.Scope(col).Add("a").SetConstruct(newCounter).
			SetFactory(func(_ context.Context, e *Entry, construct Constructor) (any, error) {
				gotConstruct = construct
				return &counter{n: 1}, nil
			}, false)

		obj, err := e.Object(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, obj.(*counter).n)
		assert.NotNil(t, gotConstruct, "factory must receive the default constructor")
	})

	t.Run("collector factory when no own factory", func(t *testing.T) {
		e := reg.Scope(col).Add("b").SetConstruct(newCounter)
		obj, err := e.Object(ctx)
		require.NoError(t, err)
		assert.Equal(t, 100, obj.(*counter).n)
	})

	t.Run("default constructor last", func(t *testing.T) {
		obj, err := reg.Add("plain").SetConstruct(newCounter).Object(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, obj.(*counter).n)
	})

	t.Run("nothing to resolve with", func(t *testing.T) {
		_, err := reg.Add("empty").Object(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNoConstructor)
		var resolveErr *ResolveError
		require.ErrorAs(t, err, &resolveErr)
		assert.Equal(t, "empty", resolveErr.Name)
	})

	t.Run("missing collector", func(t *testing.T) {
		_, err := reg.Add("orphan").SetCollector("collector.nope").Object(ctx)
		assert.ErrorIs(t, err, ErrCollectorMissing)
	})
}

func TestSetFactory_ResetDropsCachedInstance(t *testing.T) {
	ctx := context.Background()
	reg := New()
	e := reg.Add("x").SetConstruct(newCounter)
	first, err := e.Object(ctx)
	require.NoError(t, err)

	e.SetFactory(func(context.Context, *Entry, Constructor) (any, error) { return &counter{n: 7}, nil }, true)
	second, err := e.Object(ctx)
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, 7, second.(*counter).n)
}

func TestGet_MissingEntryIsNil(t *testing.T) {
	obj, err := New().Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, obj)
}

func TestEach_CollectsNonNilInRegistrationOrder(t *testing.T) {
	reg := New()
	reg.Add("math").SetTag("service").SetTag("base")
	reg.Add("other").SetTag("controller")
	reg.Add("strings").SetTag("service")

	names := reg.Each(func(e *Entry) any {
		if e.HasTag("service") {
			return e.Name()
		}
		return nil
	})

	assert.Equal(t, []any{"math", "strings"}, names)
}

func TestEach_MathScenario(t *testing.T) {
	reg := New()
	reg.Add("math").SetTag("service").SetTag("base")

	names := reg.Each(func(e *Entry) any {
		if e.HasTag("service") {
			return e.Name()
		}
		return nil
	})

	assert.Equal(t, []any{"math"}, names)
}

func TestFindAndFinds(t *testing.T) {
	reg := New()
	reg.Add("controller.a").SetTag("controller").SetTag("base")
	reg.Add("controller.a.index").SetTag("controller").SetTag("route")
	reg.Add("controller.b").SetTag("controller").SetTag("base")

	first := reg.Find(Tagged("controller", "base"))
	require.NotNil(t, first)
	assert.Equal(t, "controller.a", first.Name())

	all := reg.Finds(Tagged("controller", "base"))
	require.Len(t, all, 2)
	assert.Equal(t, "controller.b", all[1].Name())

	assert.Nil(t, reg.Find(Tagged("nope")))
}

func TestMetadataQueriesDoNotResolve(t *testing.T) {
	var built atomic.Int32
	reg := New()
	reg.Add("lazy").
		SetConstruct(func() (any, error) { built.Add(1); return &counter{}, nil }).
		SetTag("remote").
		SetAttribute("path", "/lazy").
		AddMethodAction("add", "Add")

	reg.Each(func(e *Entry) any { return e.Attribute("path") })
	_ = reg.Finds(Tagged("remote"))
	_ = reg.Snapshot()
	assert.True(t, reg.Entry("lazy").HasAction("add"))

	assert.Equal(t, int32(0), built.Load())
}

func TestAdd_ReturnsExistingEntry(t *testing.T) {
	reg := New()
	a := reg.Add("dup").SetTag("one")
	b := reg.Add("dup").SetTag("two")

	assert.Same(t, a, b)
	assert.Equal(t, []string{"one", "two"}, b.Tags())
	assert.Equal(t, 1, reg.Len())
}

func TestSet_PrebuiltInstance(t *testing.T) {
	reg := New()
	inst := &counter{n: 3}
	reg.Set("prebuilt", inst)

	obj, err := reg.Get(context.Background(), "prebuilt")
	require.NoError(t, err)
	assert.Same(t, inst, obj)
}

func TestCollect_RunsOncePerCollectorUnlessReset(t *testing.T) {
	ctx := context.Background()
	reg := New()
	first := &testCollector{prefix: "module", locals: []string{"a"}}
	reg.AddCollector(first)

	require.NoError(t, reg.Collect(ctx, false))
	require.NoError(t, reg.Collect(ctx, false))
	assert.Equal(t, 1, first.runs)

	second := &testCollector{prefix: "service", locals: []string{"math"}}
	reg.AddCollector(second)
	require.NoError(t, reg.Collect(ctx, false))
	assert.Equal(t, 1, first.runs)
	assert.Equal(t, 1, second.runs)

	require.NoError(t, reg.Collect(ctx, true))
	assert.Equal(t, 2, first.runs)
	assert.Equal(t, 2, second.runs)

	e := reg.Entry("service.math")
	require.NotNil(t, e)
	assert.True(t, e.HasTag("service"))
	assert.Equal(t, "collector.service", e.CollectorName())
	assert.True(t, reg.Entry("collector.service").HasTag(TagCollector))
}

func TestClaim_DuplicateSingleton(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Claim("root"))

	err := reg.Claim("root")
	var dup *DuplicateSingletonError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "root", dup.Name)

	assert.NoError(t, New().Claim("root"), "claims are scoped to one registry")
}

func TestAction_FunctionAndMethod(t *testing.T) {
	ctx := context.Background()
	reg := New()
	e := reg.Add("calc").SetConstruct(newCounter).
		AddMethodAction("add", "Add").
		AddMethodAction("sum", "Sum").
		AddMethodAction("fail", "Fail").
		AddMethodAction("ghost", "DoesNotExist").
		AddAction("describe", func(_ context.Context, obj any, args ...any) (any, error) {
			return fmt.Sprintf("%T:%v", obj, args), nil
		})

	add, err := e.Action(ctx, "add")
	require.NoError(t, err)
	v, err := add(ctx, float64(2), float64(3)) // wire values arrive as float64
	require.NoError(t, err)
	assert.Equal(t, 5, v)

	sum, err := e.Action(ctx, "sum")
	require.NoError(t, err)
	v, err = sum(ctx, map[string]any{"x": float64(1), "y": float64(4)})
	require.NoError(t, err)
	assert.Equal(t, 5, v)

	fail, err := e.Action(ctx, "fail")
	require.NoError(t, err)
	_, err = fail(ctx)
	assert.EqualError(t, err, "failed on purpose")

	describe, err := e.Action(ctx, "describe")
	require.NoError(t, err)
	v, err = describe(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, "*registry.counter:[x]", v)

	_, err = add(ctx, 1)
	assert.Error(t, err, "argument count is checked")

	_, err = e.Action(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNoAction)
	_, err = e.Action(ctx, "undefined")
	assert.ErrorIs(t, err, ErrNoAction)

	assert.Equal(t, []string{"add", "describe", "fail", "ghost", "sum"}, e.ActionNames())
}

func TestValidate(t *testing.T) {
	ctx := context.Background()
	reg := New()
	reg.Add("ok").SetConstruct(newCounter)
	reg.Add("broken")
	reg.Add("orphan").SetCollector("collector.missing")
	reg.Add("remote.calc").SetConstruct(newCounter).SetRemote("service.calc")

	err := reg.Validate(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entry 'broken'")
	assert.Contains(t, err.Error(), "collector 'collector.missing'")
	assert.Contains(t, err.Error(), "local alias 'service.calc'")
	assert.NotContains(t, err.Error(), "entry 'ok'")
}

func TestSnapshotRestore_MetadataOnly(t *testing.T) {
	reg := New()
	reg.Add("service.math").
		SetCollector("collector.service").
		SetTag("service").
		SetAttribute("path", "/math").
		AddMethodAction("add", "Add").
		SetVolatile(true).
		SetRemote("service.math_local").
		SetFile("math.hcl")

	restored := New()
	restored.Restore(reg.Snapshot())

	e := restored.Entry("service.math")
	require.NotNil(t, e)
	assert.Equal(t, reg.Entry("service.math").Describe(), e.Describe())
	assert.False(t, e.Resolved())
}

func TestObject_ConcurrentFirstResolution(t *testing.T) {
	ctx := context.Background()
	var built atomic.Int32
	reg := New()
	reg.Add("shared").SetConstruct(func() (any, error) {
		built.Add(1)
		return &counter{}, nil
	})

	var wg sync.WaitGroup
	results := make([]any, 50)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			obj, err := reg.Get(ctx, "shared")
			assert.NoError(t, err)
			results[i] = obj
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), built.Load())
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}

type recordingModule struct{ name string }

func (m recordingModule) Register(r *Registry) {
	r.Add(m.name).SetTag(TagModule)
}

func TestRegister_Modules(t *testing.T) {
	reg := New()
	reg.Register(recordingModule{name: "module.a"}, recordingModule{name: "module.b"})

	assert.Len(t, reg.Finds(Tagged(TagModule)), 2)
}
