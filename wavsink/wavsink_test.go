package wavsink

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	s, err := Create(path)
	require.NoError(t, err)

	require.NoError(t, s.WriteSamples([]int16{100, -100, 32767, -32768}))
	require.NoError(t, s.WriteSamples(nil))
	require.NoError(t, s.WriteSamples([]int16{1, 2}))
	assert.Equal(t, 3, s.Frames())
	require.NoError(t, s.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	dec := wav.NewDecoder(f)
	require.True(t, dec.IsValidFile())
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)

	assert.Equal(t, uint16(2), dec.NumChans)
	assert.Equal(t, uint32(SampleRate), dec.SampleRate)
	assert.Equal(t, uint16(16), dec.BitDepth)
	assert.Equal(t, []int{100, -100, 32767, -32768, 1, 2}, buf.Data)
}
