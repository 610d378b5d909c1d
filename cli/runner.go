// Package cli drives a player for command-line use. It renders in fixed
// blocks and hands each block to an audio sink.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultBlock is the number of stereo frames rendered per step.
const DefaultBlock = 512

// Source produces interleaved stereo frames.
type Source interface {
	Render(samples int) ([]int16, error)
}

// AudioSink consumes interleaved stereo frames.
type AudioSink interface {
	WriteSamples(samples []int16) error
}

// Runner wraps a Source for command-line mode.
type Runner struct {
	src   Source
	sink  AudioSink
	block int
	rate  int
	log   *slog.Logger
}

// NewRunner creates a Runner rendering block frames per step at rate Hz.
// A block of 0 selects DefaultBlock.
func NewRunner(src Source, sink AudioSink, block, rate int, log *slog.Logger) *Runner {
	if block <= 0 {
		block = DefaultBlock
	}
	if log == nil {
		log = slog.Default()
	}
	return &Runner{src: src, sink: sink, block: block, rate: rate, log: log}
}

// Frames converts a duration to a frame count at the runner's rate.
func (r *Runner) Frames(d time.Duration) int {
	return int(d * time.Duration(r.rate) / time.Second)
}

// Run renders length of audio followed by fade, ramping the fade linearly
// to silence. It stops early when ctx is done or the source stalls, and
// returns the number of frames delivered.
func (r *Runner) Run(ctx context.Context, length, fade time.Duration) (int, error) {
	playFrames := r.Frames(length)
	total := playFrames + r.Frames(fade)
	fadeFrames := total - playFrames

	done := 0
	for done < total {
		if err := ctx.Err(); err != nil {
			return done, err
		}

		n := min(r.block, total-done)
		out, err := r.src.Render(n)
		if err != nil {
			return done, fmt.Errorf("render at frame %d: %w", done, err)
		}
		got := len(out) / 2
		if got == 0 {
			r.log.Warn("source stalled", "frame", done)
			return done, nil
		}
		if fadeFrames > 0 {
			applyFade(out, done, playFrames, fadeFrames)
		}
		if err := r.sink.WriteSamples(out); err != nil {
			return done, err
		}
		done += got
	}
	r.log.Debug("run complete", "frames", done)
	return done, nil
}

// applyFade scales out, which starts at frame pos, by the fade curve that
// begins at frame start and lasts span frames.
func applyFade(out []int16, pos, start, span int) {
	for i := 0; i < len(out)/2; i++ {
		f := pos + i - start
		if f < 0 {
			continue
		}
		gain := int64(span - f)
		if gain < 0 {
			gain = 0
		}
		out[i*2] = int16(int64(out[i*2]) * gain / int64(span))
		out[i*2+1] = int16(int64(out[i*2+1]) * gain / int64(span))
	}
}
