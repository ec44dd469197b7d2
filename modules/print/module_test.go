package print

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/zerosystem/internal/registry"
)

func TestPrinter_PrintsSortedThroughRegistry(t *testing.T) {
	// --- Arrange ---
	var out bytes.Buffer
	reg := registry.New()
	reg.Register(&Module{Out: &out})
	e := reg.Entry(Name)
	require.NotNil(t, e)

	// --- Act ---
	action, err := e.Action(context.Background(), "print")
	require.NoError(t, err)
	lines, err := action(context.Background(), map[string]any{"b": "2", "a": "1"})

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, []string{`      a = "1"`, `      b = "2"`}, lines)
	assert.Equal(t, "      a = \"1\"\n      b = \"2\"\n", out.String())
	remote, local := e.Remote()
	assert.True(t, remote)
	assert.Empty(t, local)
	assert.True(t, e.HasTag(registry.TagRemote))
}

func TestPrinter_NilAndEcho(t *testing.T) {
	var out bytes.Buffer
	p := NewPrinter(&out)

	assert.Nil(t, p.Print(context.Background(), nil))
	assert.Equal(t, "      (null)\n", out.String())
	assert.Equal(t, map[string]any{"v": 1.0}, p.Echo(map[string]any{"v": 1.0}))
}
