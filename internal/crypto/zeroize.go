package crypto

import "runtime"

// Zeroize overwrites b with zeros.
// The garbage collector may have copied the bytes elsewhere; this only clears
// the backing array the caller holds.
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}

// clone returns a copy of b that the caller owns.
func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
