// Package version turns the launcher's dotted version strings into
// comparable numeric keys.
package version

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidFormat = errors.New("invalid version format")

// FormatError reports which version string could not be encoded and why.
type FormatError struct {
	Version string
	Reason  string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s %q: %s", ErrInvalidFormat, e.Version, e.Reason)
}

func (e *FormatError) Unwrap() error {
	return ErrInvalidFormat
}

// Digit width of each segment of YYYY.MM.DD.PPPP.SSSS.
var segmentWidths = [...]int{4, 2, 2, 4, 4}

// Encode returns the ordering key of a version string such as
// "2023.09.26.0000.0000". A single leading 'D' or 'H' (as found in
// patch file names) is ignored.
//
// Segments are packed positionally in base 10, each padded to its
// fixed width, so comparing keys is the same as comparing the
// segments left to right.
func Encode(s string) (int64, error) {
	values, err := parse(s)
	if err != nil {
		return 0, err
	}

	var key int64
	for i, value := range values {
		key = key*pow10(segmentWidths[i]) + value
	}
	return key, nil
}

// Canonical returns the form of s that is stored: no 'D' or 'H'
// prefix and every segment zero-padded to its width. Two strings have
// the same key exactly when they have the same canonical form.
func Canonical(s string) (string, error) {
	values, err := parse(s)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for i, value := range values {
		if i > 0 {
			b.WriteByte('.')
		}
		fmt.Fprintf(&b, "%0*d", segmentWidths[i], value)
	}
	return b.String(), nil
}

func parse(s string) ([len(segmentWidths)]int64, error) {
	var values [len(segmentWidths)]int64

	trimmed := s
	if len(trimmed) > 0 && (trimmed[0] == 'D' || trimmed[0] == 'H') {
		trimmed = trimmed[1:]
	}

	segments := strings.Split(trimmed, ".")
	if len(segments) != len(segmentWidths) {
		return values, &FormatError{
			Version: s,
			Reason:  fmt.Sprintf("expected %d segments, got %d", len(segmentWidths), len(segments)),
		}
	}

	for i, seg := range segments {
		width := segmentWidths[i]
		if seg == "" || len(seg) > width {
			return values, &FormatError{
				Version: s,
				Reason:  fmt.Sprintf("segment %d must have 1 to %d digits", i+1, width),
			}
		}

		for _, c := range seg {
			if c < '0' || c > '9' {
				return values, &FormatError{
					Version: s,
					Reason:  fmt.Sprintf("segment %d is not numeric", i+1),
				}
			}
			values[i] = values[i]*10 + int64(c-'0')
		}
	}
	return values, nil
}

// MustEncode is Encode for version strings known to be valid, such as
// the ones already stored.
func MustEncode(s string) int64 {
	key, err := Encode(s)
	if err != nil {
		panic(err)
	}
	return key
}

// Less reports whether a denotes an earlier release than b. Invalid
// strings sort first.
func Less(a, b string) bool {
	ka, errA := Encode(a)
	kb, errB := Encode(b)
	if errA != nil || errB != nil {
		return errA != nil && errB == nil
	}
	return ka < kb
}

func pow10(n int) int64 {
	p := int64(1)
	for range n {
		p *= 10
	}
	return p
}
