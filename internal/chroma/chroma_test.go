package chroma

import (
	"math/rand"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterleave_Layout(t *testing.T) {
	planar := []byte{1, 2, 3, 10, 20, 30}
	dst := make([]byte, len(planar))

	require.NoError(t, Interleave(dst, planar))
	assert.Equal(t, []byte{1, 10, 2, 20, 3, 30}, dst)

	back := make([]byte, len(dst))
	require.NoError(t, Deinterleave(back, dst))
	assert.Equal(t, planar, back)
}

// TestInterleave_RoundTrip: interleave then de-interleave reproduces any
// planar chroma plane.
func TestInterleave_RoundTrip(t *testing.T) {
	property := func(seed int64, halfLen uint8) bool {
		r := rand.New(rand.NewSource(seed))
		planar := make([]byte, 2*int(halfLen))
		r.Read(planar)

		mid := make([]byte, len(planar))
		out := make([]byte, len(planar))
		if Interleave(mid, planar) != nil || Deinterleave(out, mid) != nil {
			return false
		}
		for i := range planar {
			if planar[i] != out[i] {
				return false
			}
		}
		return true
	}

	if err := quick.Check(property, &quick.Config{MaxCount: 200}); err != nil {
		t.Errorf("round trip property failed: %v", err)
	}
	t.Logf("✅ interleave/deinterleave round trip holds for 200 random planes")
}

func TestInterleave_SizeErrors(t *testing.T) {
	assert.Error(t, Interleave(make([]byte, 3), make([]byte, 3)))
	assert.Error(t, Interleave(make([]byte, 2), make([]byte, 4)))
	assert.Error(t, Deinterleave(make([]byte, 4), make([]byte, 2)))
	assert.NoError(t, Interleave(nil, nil))
}
