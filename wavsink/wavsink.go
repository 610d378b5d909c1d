// Package wavsink writes interleaved 16-bit stereo audio to a WAV file.
package wavsink

import (
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	SampleRate = 44100
	channels   = 2
	bitDepth   = 16
	pcmFormat  = 1
)

// Sink encodes audio blocks as they arrive.
type Sink struct {
	f      *os.File
	enc    *wav.Encoder
	buf    *audio.IntBuffer
	frames int
}

// Create opens filename for writing.
func Create(filename string) (*Sink, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("wavsink: %w", err)
	}
	s := New(f)
	s.f = f
	return s, nil
}

// New writes to w. The header is patched on Close, so w must be seekable.
func New(w io.WriteSeeker) *Sink {
	return &Sink{
		enc: wav.NewEncoder(w, SampleRate, bitDepth, channels, pcmFormat),
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: channels, SampleRate: SampleRate},
			SourceBitDepth: bitDepth,
		},
	}
}

// WriteSamples appends interleaved stereo frames.
func (s *Sink) WriteSamples(samples []int16) error {
	if len(samples) == 0 {
		return nil
	}
	s.buf.Data = s.buf.Data[:0]
	for _, v := range samples {
		s.buf.Data = append(s.buf.Data, int(v))
	}
	if err := s.enc.Write(s.buf); err != nil {
		return fmt.Errorf("wavsink: %w", err)
	}
	s.frames += len(samples) / channels
	return nil
}

// Frames is the number of stereo frames written.
func (s *Sink) Frames() int {
	return s.frames
}

// Close finishes the file.
func (s *Sink) Close() (rerr error) {
	if s.f != nil {
		defer func() {
			if err := s.f.Close(); err != nil && rerr == nil {
				rerr = fmt.Errorf("wavsink: %w", err)
			}
		}()
	}
	if err := s.enc.Close(); err != nil {
		return fmt.Errorf("wavsink: %w", err)
	}
	return nil
}
