package crypto

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// Keys, nonces and signatures travel as unpadded base64url.
var wire = base64.RawURLEncoding

// Peers may pad or use the standard alphabet; decoding accepts all four.
var lenient = []*base64.Encoding{
	base64.RawURLEncoding,
	base64.URLEncoding,
	base64.RawStdEncoding,
	base64.StdEncoding,
}

// ToBase64URL encodes data in the wire encoding.
func ToBase64URL(data []byte) string {
	return wire.EncodeToString(data)
}

// FromBase64URL decodes the wire encoding strictly.
func FromBase64URL(s string) ([]byte, error) {
	return wire.DecodeString(s)
}

// DecodeBase64 decodes s in any base64 variant.
func DecodeBase64(s string) ([]byte, error) {
	var errs []error
	for _, enc := range lenient {
		data, err := enc.DecodeString(s)
		if err == nil {
			return data, nil
		}
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("decode base64: %w", errors.Join(errs...))
}

// DecodeSized decodes s like DecodeBase64 and checks the result is exactly
// size bytes long.
func DecodeSized(s string, size int) ([]byte, error) {
	data, err := DecodeBase64(s)
	if err != nil {
		return nil, err
	}
	if len(data) != size {
		Zeroize(data)
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidBufferSize, len(data), size)
	}
	return data, nil
}
