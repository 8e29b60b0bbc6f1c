package discovery

import (
	"github.com/stretchr/testify/assert"
	"testing"
)

func TestRegistryLatches(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, ModeUnset, r.Mode("a"))
	assert.Equal(t, ModeField, r.LatchMode("a", ModeField))
	assert.Equal(t, ModeField, r.LatchMode("a", ModeJSON))
	assert.Equal(t, ModeField, r.Mode("a"))

	assert.True(t, r.MarkDiscovered("a"))
	assert.False(t, r.MarkDiscovered("a"))
	assert.True(t, r.IsDiscovered("a"))
	assert.False(t, r.IsDiscovered("b"))
	assert.Equal(t, 1, r.Len())
}

func TestRegistryForget(t *testing.T) {
	r := NewRegistry()
	r.LatchMode("a", ModeJSON)
	assert.True(t, r.MarkDiscovered("a"))
	r.forget("a")
	assert.False(t, r.IsDiscovered("a"))
	assert.Equal(t, ModeJSON, r.Mode("a"), "mode latch survives")
	assert.True(t, r.MarkDiscovered("a"))
}

func TestRegistryDevices(t *testing.T) {
	r := NewRegistry()
	r.LatchMode("c", ModeJSON)
	r.MarkDiscovered("c")
	r.MarkDiscovered("a")
	r.LatchMode("b", ModeField)
	assert.Equal(t, []DeviceState{
		{ID: "a", Mode: ModeUnset, Discovered: true},
		{ID: "b", Mode: ModeField, Discovered: false},
		{ID: "c", Mode: ModeJSON, Discovered: true},
	}, r.Devices())
}

func TestModeText(t *testing.T) {
	b, err := ModeField.MarshalText()
	assert.NoError(t, err)
	assert.Equal(t, "field", string(b))
	assert.Equal(t, "unset", ModeUnset.String())
}
