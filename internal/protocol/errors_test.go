package protocol

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/zerosystem/internal/pending"
	"github.com/vk/zerosystem/internal/registry"
)

func TestSerialize_KeepsKnownNames(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name     string
		err      error
		wantName string
		sentinel error
	}{
		{"no handler", &NoHandlerError{Event: "x"}, NameNoHandler, ErrNoHandler},
		{"unanswered", fmt.Errorf("wrapped: %w", &UnansweredRequestError{Event: "x"}), NameUnanswered, ErrUnanswered},
		{"handler", &HandlerExecutionError{Event: "x", Err: errors.New("bad")}, NameHandlerExecution, ErrHandler},
		{"timeout", &pending.TimeoutError{ID: "id", Timeout: time.Second}, NameTimeout, pending.ErrTimeout},
		{"singleton", &registry.DuplicateSingletonError{Name: "root"}, NameDuplicateSingleton, registry.ErrDuplicateSingleton},
		{"handler wrapping timeout", &HandlerExecutionError{Event: "x", Err: fmt.Errorf("downstream: %w", &pending.TimeoutError{ID: "id"})}, NameHandlerExecution, ErrHandler},
		{"generic", errors.New("plain"), NameGeneric, nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			se := Serialize(tc.err)
			require.NotNil(t, se)
			assert.Equal(t, tc.wantName, se.Name)
			assert.Equal(t, tc.err.Error(), se.Message)

			remote := Deserialize(se, "uuid-1", "local frames\n")
			if tc.sentinel != nil {
				assert.ErrorIs(t, remote, tc.sentinel)
			}
			assert.Equal(t, tc.wantName+": "+tc.err.Error(), remote.Error())
		})
	}
}

func TestSerialize_Nil(t *testing.T) {
	t.Parallel()
	assert.Nil(t, Serialize(nil))
	assert.Nil(t, Deserialize(nil, "", ""))
}

func TestRemoteError_RoundTripKeepsOrigin(t *testing.T) {
	t.Parallel()
	first := Deserialize(&SerializedError{Name: NameNoHandler, Message: "m", Stack: "remote frames"}, "u1", "hop one")

	se := Serialize(fmt.Errorf("forwarding: %w", first))

	assert.Equal(t, NameNoHandler, se.Name)
	assert.Equal(t, "m", se.Message)
	assert.Equal(t, "remote frames\n--- REQUEST u1 ---\nhop one", se.Stack)
}

func TestHandlerChain_StableAscending(t *testing.T) {
	t.Parallel()
	chain := NewHandlerChain()
	var got []string
	mark := func(name string) Handler {
		return func(context.Context, *Request, *Mount, Answer) error {
			got = append(got, name)
			return nil
		}
	}
	chain.Add("e", mark("b0"), 0)
	chain.Add("e", mark("c5"), 5)
	chain.Add("e", mark("a-1"), -1)
	chain.Add("e", mark("d0"), 0)
	chain.Add("other", mark("x"), 0)

	for _, h := range chain.Handlers("e") {
		require.NoError(t, h(context.Background(), nil, nil, nil))
	}

	assert.Equal(t, []string{"a-1", "b0", "d0", "c5"}, got)
	assert.Nil(t, chain.Handlers("missing"))
	assert.Equal(t, []string{"e", "other"}, chain.Events())
}

func TestMeta_TimeoutDuration(t *testing.T) {
	t.Parallel()
	assert.Equal(t, DefaultTimeout, Meta{}.TimeoutDuration())
	assert.Equal(t, 50*time.Millisecond, Meta{Timeout: 50}.TimeoutDuration())
}
