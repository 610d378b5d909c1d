package psf

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseDuration reads a tag time in the [[h:]m:]s[.fff] form used by the
// length and fade tags. A comma is accepted as the decimal separator.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return 0, fmt.Errorf("psf: empty duration")
	}
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("psf: bad duration %q", s)
	}

	var total float64
	for i, p := range parts {
		last := i == len(parts)-1
		var v float64
		var err error
		if last {
			v, err = strconv.ParseFloat(p, 64)
		} else {
			var n int
			n, err = strconv.Atoi(p)
			v = float64(n)
		}
		if err != nil || v < 0 {
			return 0, fmt.Errorf("psf: bad duration %q", s)
		}
		total = total*60 + v
	}
	return time.Duration(total * float64(time.Second)), nil
}

// Length returns the play time and fade-out time from the length and fade
// tags. ok is false when there is no usable length tag; fade is zero when
// absent or malformed.
func (t Tags) Length() (length, fade time.Duration, ok bool) {
	length, err := ParseDuration(t.Get("length"))
	if err != nil {
		return 0, 0, false
	}
	if v := t.Get("fade"); v != "" {
		if f, err := ParseDuration(v); err == nil {
			fade = f
		}
	}
	return length, fade, true
}
