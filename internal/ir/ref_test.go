package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRef(t *testing.T) {
	tests := []struct {
		in   string
		addr string
		attr string
		ok   bool
	}{
		{"ref://webApp.appA/hostname", "webApp.appA", "hostname", true},
		{"ref://containerRegistry.registry/loginServer", "containerRegistry.registry", "loginServer", true},
		{"ref://webApp.appA/endpoints/primary", "webApp.appA", "endpoints/primary", true},
		{"ref://webApp.appA", "", "", false},
		{"ref:///hostname", "", "", false},
		{"ref://justname/attr", "", "", false},
		{"http://webApp.appA/hostname", "", "", false},
		{"plain value", "", "", false},
	}

	for _, tt := range tests {
		addr, attr, ok := ParseRef(tt.in)
		assert.Equal(t, tt.ok, ok, "input %q", tt.in)
		assert.Equal(t, tt.addr, addr, "input %q", tt.in)
		assert.Equal(t, tt.attr, attr, "input %q", tt.in)
	}
}

func TestMakeRefRoundTrip(t *testing.T) {
	ref := MakeRef("webApp.appA", "hostname")
	assert.True(t, IsRef(ref))

	addr, attr, ok := ParseRef(ref)
	assert.True(t, ok)
	assert.Equal(t, "webApp.appA", addr)
	assert.Equal(t, "hostname", attr)
}

func TestIsRefNonString(t *testing.T) {
	assert.False(t, IsRef(42))
	assert.False(t, IsRef(nil))
	assert.False(t, IsRef(map[string]any{"ref": true}))
}

func TestSplitAddress(t *testing.T) {
	typ, name, ok := SplitAddress("webApp.appA")
	assert.True(t, ok)
	assert.Equal(t, "webApp", typ)
	assert.Equal(t, "appA", name)

	// count-expanded names keep their index suffix
	typ, name, ok = SplitAddress(`webApp.appA[0]`)
	assert.True(t, ok)
	assert.Equal(t, "webApp", typ)
	assert.Equal(t, "appA[0]", name)

	_, _, ok = SplitAddress("noseparator")
	assert.False(t, ok)
}

func TestStateResourceLookup(t *testing.T) {
	st := &State{
		Version: StateVersion,
		Resources: []*ResourceState{
			{Type: "webApp", Name: "appA", ID: "app-1"},
			{Type: "webApp", Name: "appB", ID: "app-2"},
		},
	}

	rs := st.Resource("webApp.appB")
	assert.NotNil(t, rs)
	assert.Equal(t, "app-2", rs.ID)

	assert.Nil(t, st.Resource("webApp.appC"))

	st.RemoveResource("webApp.appA")
	assert.Len(t, st.Resources, 1)
	assert.Nil(t, st.Resource("webApp.appA"))
}

func TestStateCheckVersion(t *testing.T) {
	assert.NoError(t, (&State{Version: StateVersion}).CheckVersion())
	assert.Error(t, (&State{}).CheckVersion())
	assert.Error(t, (&State{Version: StateVersion + 1}).CheckVersion())
}
