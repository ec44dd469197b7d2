package env_vars

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/zerosystem/internal/lifecycle"
	"github.com/vk/zerosystem/internal/registry"
)

func TestEnv_PrefixFromAttribute(t *testing.T) {
	// --- Arrange ---
	t.Setenv("ZERO_TEST_ENV_A", "alpha")
	t.Setenv("OTHER_TEST_ENV_B", "beta")
	reg := registry.New()
	reg.Register(&Module{})
	reg.Entry(Name).SetAttribute(AttrPrefix, "ZERO_TEST_")

	// --- Act ---
	obj, err := reg.Get(context.Background(), Name)
	require.NoError(t, err)
	env := obj.(*Env)

	// --- Assert ---
	all := env.All()
	assert.Equal(t, "alpha", all["ZERO_TEST_ENV_A"])
	assert.NotContains(t, all, "OTHER_TEST_ENV_B")

	v, err := env.Get("ZERO_TEST_ENV_A")
	require.NoError(t, err)
	assert.Equal(t, "alpha", v)

	_, err = env.Get("OTHER_TEST_ENV_B")
	assert.ErrorContains(t, err, "outside prefix")
	_, err = env.Get("ZERO_TEST_ENV_MISSING")
	assert.ErrorContains(t, err, "is not set")
}

func TestModule_RemoteExposureNeedsPrefix(t *testing.T) {
	testCases := []struct {
		name    string
		arrange func(reg *registry.Registry)
		wantErr string
	}{
		{
			name:    "local only",
			arrange: func(*registry.Registry) {},
		},
		{
			name:    "remote without prefix",
			arrange: func(reg *registry.Registry) { reg.Entry(Name).SetRemote("") },
			wantErr: "service.env is exposed by service.env without a 'prefix' attribute",
		},
		{
			name: "aliased without prefix",
			arrange: func(reg *registry.Registry) {
				reg.Add("remote.env").SetRemote(Name).AddMethodAction("get", "Get")
			},
			wantErr: "service.env is exposed by remote.env",
		},
		{
			name: "aliased with prefix",
			arrange: func(reg *registry.Registry) {
				reg.Entry(Name).SetAttribute(AttrPrefix, "ZERO_")
				reg.Add("remote.env").SetRemote(Name).AddMethodAction("get", "Get")
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// --- Arrange ---
			reg := registry.New()
			reg.Register(&Module{})
			tc.arrange(reg)
			root, err := lifecycle.New(reg, t.TempDir())
			require.NoError(t, err)

			// --- Act ---
			err = root.Init(context.Background())

			// --- Assert ---
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestModule_NotRemoteByDefault(t *testing.T) {
	reg := registry.New()
	reg.Register(&Module{})

	remote, _ := reg.Entry(Name).Remote()
	assert.False(t, remote)
}
