package segment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLSNRange_Overlaps(t *testing.T) {
	a := LSNRange{Lo: 10, Hi: 20}
	b := LSNRange{Lo: 20, Hi: 30}
	c := LSNRange{Lo: 21, Hi: 30}

	assert.True(t, a.Overlaps(b))
	assert.False(t, a.Overlaps(c))
}

func TestDescriptor_Validate(t *testing.T) {
	d := &Descriptor{LSNRange: LSNRange{Lo: 5, Hi: 1}}
	err := d.Validate()
	require.Error(t, err)

	d = &Descriptor{LSNRange: LSNRange{Lo: 1, Hi: 5}, CompressionLevel: 23}
	err = d.Validate()
	require.Error(t, err)

	d = &Descriptor{LSNRange: LSNRange{Lo: 1, Hi: 5}, CompressionLevel: 3}
	assert.NoError(t, d.Validate())
}

func TestState_StringAndJSON(t *testing.T) {
	assert.Equal(t, "Sealed", Sealed.String())

	out, err := Sealed.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"Sealed"`, string(out))

	var s State
	require.NoError(t, s.UnmarshalJSON(out))
	assert.Equal(t, Sealed, s)

	err = s.UnmarshalJSON([]byte(`"Bogus"`))
	require.Error(t, err)
}
