package crypto

import (
	"crypto/hmac"
	"crypto/sha512"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DeriveKey derives a key using HKDF-SHA-512.
func DeriveKey(secret, salt, info []byte, length int) ([]byte, error) {
	if len(salt) == 0 {
		salt = make([]byte, sha512.Size)
	}

	reader := hkdf.New(sha512.New, secret, salt, info)
	key := make([]byte, length)

	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	return key, nil
}

// ConfirmationTag computes an HMAC-SHA-512 tag over transcript under a key
// derived from sharedSecret. Two parties holding the same shared secret
// compute the same tag.
func ConfirmationTag(sharedSecret, transcript []byte) ([]byte, error) {
	key, err := DeriveKey(sharedSecret, nil, []byte(HKDFConfirmContext), sha512.Size)
	if err != nil {
		return nil, err
	}
	defer Zeroize(key)

	mac := hmac.New(sha512.New, key)
	mac.Write(transcript)
	return mac.Sum(nil), nil
}

// VerifyConfirmationTag reports whether tag matches the tag computed from
// sharedSecret over transcript, in constant time.
func VerifyConfirmationTag(sharedSecret, transcript, tag []byte) bool {
	want, err := ConfirmationTag(sharedSecret, transcript)
	if err != nil {
		return false
	}
	return hmac.Equal(want, tag)
}
