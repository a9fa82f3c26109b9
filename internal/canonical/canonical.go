// Package canonical serializes values to RFC 8785 canonical JSON.
//
// The output has sorted object keys, no insignificant whitespace and
// normalized number formatting, so the same payload always yields the same
// bytes no matter how its map was built.
//
// RFC 8785 represents every number as an IEEE-754 double. Marshal refuses
// numbers that would change on the way through a double, such as integers
// beyond 2^53, instead of rounding them.
package canonical

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/gowebpki/jcs"
)

// ErrInexactNumber reports a number that would change when written as a
// double.
var ErrInexactNumber = errors.New("canonical: number not exactly representable as a double")

// Marshal encodes v to canonical JSON.
func Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: marshal: %w", err)
	}

	if err := checkNumbers(raw); err != nil {
		return nil, err
	}

	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonical: transform: %w", err)
	}

	return out, nil
}

func checkNumbers(raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("canonical: decode: %w", err)
	}
	return walk(doc)
}

func walk(v any) error {
	switch t := v.(type) {
	case map[string]any:
		for _, e := range t {
			if err := walk(e); err != nil {
				return err
			}
		}
	case []any:
		for _, e := range t {
			if err := walk(e); err != nil {
				return err
			}
		}
	case json.Number:
		return exact(t.String())
	}
	return nil
}

// exact reports whether the decimal literal s keeps its value once written as
// the shortest double that RFC 8785 emits for it.
func exact(s string) error {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInexactNumber, s)
	}

	want, ok := new(big.Rat).SetString(s)
	if !ok {
		return fmt.Errorf("%w: %s", ErrInexactNumber, s)
	}
	got, ok := new(big.Rat).SetString(strconv.FormatFloat(f, 'g', -1, 64))
	if !ok || got.Cmp(want) != 0 {
		return fmt.Errorf("%w: %s", ErrInexactNumber, s)
	}
	return nil
}
