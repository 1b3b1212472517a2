package features

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

// ErrInputDecoding is returned when an upload is not valid UTF-8 text.
var ErrInputDecoding = errors.New("input is not valid UTF-8 text")

// Decode validates raw bytes as UTF-8 and strips a leading byte order mark.
func Decode(raw []byte) (string, error) {
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("%w: invalid byte sequence at offset %d", ErrInputDecoding, invalidOffset(raw))
	}
	text, err := unicode.UTF8BOM.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInputDecoding, err)
	}
	return string(text), nil
}

func invalidOffset(raw []byte) int {
	for i := 0; i < len(raw); {
		r, size := utf8.DecodeRune(raw[i:])
		if r == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return len(raw)
}
