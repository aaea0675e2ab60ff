package pipeline

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataFlowContext_PutGet(t *testing.T) {
	flow := NewDataFlowContext()

	_, ok := flow.Get("a")
	assert.False(t, ok)

	require.NoError(t, flow.Put("a", json.RawMessage(`{"x":1}`)))

	got, ok := flow.Get("a")
	require.True(t, ok)
	assert.JSONEq(t, `{"x":1}`, string(got))
	assert.Equal(t, 1, flow.Len())
}

func TestDataFlowContext_PutIsWriteOnce(t *testing.T) {
	flow := NewDataFlowContext()

	require.NoError(t, flow.Put("a", json.RawMessage(`1`)))

	err := flow.Put("a", json.RawMessage(`2`))
	require.ErrorIs(t, err, ErrDuplicateOutput)

	// First write survives.
	got, ok := flow.Get("a")
	require.True(t, ok)
	assert.Equal(t, "1", string(got))
}

func TestDataFlowContext_GetReturnsCopy(t *testing.T) {
	flow := NewDataFlowContext()
	require.NoError(t, flow.Put("a", json.RawMessage(`{"x":1}`)))

	got, _ := flow.Get("a")
	got[0] = '!'

	again, _ := flow.Get("a")
	assert.JSONEq(t, `{"x":1}`, string(again))
}

func TestDataFlowContext_HasAllAndMissing(t *testing.T) {
	flow := NewDataFlowContext()
	require.NoError(t, flow.Put("a", json.RawMessage(`1`)))
	require.NoError(t, flow.Put("b", json.RawMessage(`2`)))

	assert.True(t, flow.HasAll(nil))
	assert.True(t, flow.HasAll([]string{"a", "b"}))
	assert.False(t, flow.HasAll([]string{"a", "c"}))

	assert.Nil(t, flow.Missing([]string{"a", "b"}))
	assert.Equal(t, []string{"c", "d"}, flow.Missing([]string{"c", "a", "d"}))
}

func TestDataFlowContext_SliceAndOutputs(t *testing.T) {
	flow := NewDataFlowContext()
	require.NoError(t, flow.Put("a", json.RawMessage(`1`)))
	require.NoError(t, flow.Put("b", json.RawMessage(`2`)))

	slice := flow.Slice([]string{"a", "ghost"})
	require.Len(t, slice, 1)
	assert.Equal(t, "1", string(slice["a"]))

	all := flow.Outputs()
	require.Len(t, all, 2)
	assert.Equal(t, "2", string(all["b"]))

	// Mutating the returned map's values does not touch stored outputs.
	all["a"][0] = '9'
	got, _ := flow.Get("a")
	assert.Equal(t, "1", string(got))
}
