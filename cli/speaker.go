package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/ebitengine/oto/v3"
)

// Speaker plays interleaved 16-bit stereo through the default audio device.
// WriteSamples blocks while the device buffer is full, which paces the
// runner to real time.
type Speaker struct {
	ctx        *oto.Context
	player     *oto.Player
	pw         *io.PipeWriter
	audioBytes []byte
}

// NewSpeaker opens the audio device at sampleRate.
func NewSpeaker(sampleRate int) (*Speaker, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open audio device: %w", err)
	}
	<-ready

	pr, pw := io.Pipe()
	player := ctx.NewPlayer(pr)
	player.Play()

	return &Speaker{
		ctx:        ctx,
		player:     player,
		pw:         pw,
		audioBytes: make([]byte, 0, DefaultBlock*4),
	}, nil
}

// WriteSamples queues samples for playback.
func (s *Speaker) WriteSamples(samples []int16) error {
	if len(samples) == 0 {
		return nil
	}
	s.audioBytes = s.audioBytes[:0]
	for _, sample := range samples {
		s.audioBytes = append(s.audioBytes, byte(sample), byte(sample>>8))
	}
	_, err := s.pw.Write(s.audioBytes)
	return err
}

// Close drains queued audio and releases the player.
func (s *Speaker) Close() error {
	s.pw.Close()
	for s.player.IsPlaying() {
		time.Sleep(10 * time.Millisecond)
	}
	return s.player.Close()
}
