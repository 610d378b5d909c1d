// Package adapter assembles a sound core from named backends and exposes it
// through the eblitui core interfaces.
package adapter

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/user-none/satsound/emu"
	"github.com/user-none/satsound/psgchip"
	"github.com/user-none/satsound/scpu"
	"github.com/user-none/satsound/scsp"
)

const (
	CPUM68K  = "m68k"
	CPUZ80   = "z80"
	ChipSCSP = "scsp"
	ChipPSG  = "psg"
)

var (
	ErrUnknownCPU  = errors.New("adapter: unknown cpu backend")
	ErrUnknownChip = errors.New("adapter: unknown chip backend")
)

// Factory builds Players.
type Factory struct {
	// Logger is handed to every Core. Nil means slog.Default.
	Logger *slog.Logger
}

// CPUKinds lists the accepted cpu backend names.
func (f *Factory) CPUKinds() []string { return []string{CPUM68K, CPUZ80} }

// ChipKinds lists the accepted chip backend names.
func (f *Factory) ChipKinds() []string { return []string{ChipSCSP, ChipPSG} }

// Create builds a Player over an initialized State. Empty kinds select
// the m68k and scsp backends.
func (f *Factory) Create(cpuKind, chipKind string) (*Player, error) {
	var cpu emu.CPU
	switch cpuKind {
	case CPUM68K, "":
		cpu = scpu.NewM68K()
	case CPUZ80:
		cpu = scpu.NewZ80()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCPU, cpuKind)
	}

	var chip emu.Chip
	switch chipKind {
	case ChipSCSP, "":
		chip = scsp.New()
	case ChipPSG:
		chip = psgchip.New()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownChip, chipKind)
	}

	return NewPlayer(cpu, chip, f.Logger)
}
