package crypto

import (
	"bytes"
	"errors"
	"testing"
)

func TestDeriveKey_Deterministic(t *testing.T) {
	secret := []byte("shared secret material")
	k1, err := DeriveKey(secret, nil, []byte(HKDFSealContext), AESKeySize)
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}
	k2, _ := DeriveKey(secret, nil, []byte(HKDFSealContext), AESKeySize)
	if !bytes.Equal(k1, k2) {
		t.Error("DeriveKey is not deterministic")
	}
	if len(k1) != AESKeySize {
		t.Errorf("key length = %d, want %d", len(k1), AESKeySize)
	}

	k3, _ := DeriveKey(secret, nil, []byte(HKDFConfirmContext), AESKeySize)
	if bytes.Equal(k1, k3) {
		t.Error("different info strings produced the same key")
	}
}

func TestConfirmationTag(t *testing.T) {
	secret := bytes.Repeat([]byte{0x42}, 32)
	transcript := []byte("ciphertext bytes")

	tag, err := ConfirmationTag(secret, transcript)
	if err != nil {
		t.Fatalf("ConfirmationTag() error = %v", err)
	}
	if !VerifyConfirmationTag(secret, transcript, tag) {
		t.Error("tag did not verify under the same secret")
	}

	other := bytes.Repeat([]byte{0x43}, 32)
	if VerifyConfirmationTag(other, transcript, tag) {
		t.Error("tag verified under a different secret")
	}
	if VerifyConfirmationTag(secret, []byte("other transcript"), tag) {
		t.Error("tag verified over a different transcript")
	}
}

func TestDecodeBase64_Lenient(t *testing.T) {
	data := []byte{0xfb, 0xf0, 0x01}
	inputs := []string{
		ToBase64URL(data),
		"-_AB",
		"+/AB",
	}
	for _, in := range inputs {
		got, err := DecodeBase64(in)
		if err != nil {
			t.Fatalf("DecodeBase64(%q) error = %v", in, err)
		}
		if !bytes.Equal(got, data) {
			t.Errorf("DecodeBase64(%q) = %x, want %x", in, got, data)
		}
	}

	if _, err := FromBase64URL("not valid!"); err == nil {
		t.Error("FromBase64URL accepted invalid input")
	}
}

func TestDecodeSized(t *testing.T) {
	raw := []byte{1, 2, 3, 4, 5}
	tests := []struct {
		name    string
		in      string
		size    int
		wantErr error
	}{
		{"url raw", ToBase64URL(raw), 5, nil},
		{"std padded", "AQIDBAU=", 5, nil},
		{"short", ToBase64URL(raw), 6, ErrInvalidBufferSize},
		{"long", ToBase64URL(raw), 4, ErrInvalidBufferSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeSized(tt.in, tt.size)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("DecodeSized() error = %v, want %v", err, tt.wantErr)
			}
			if err == nil && !bytes.Equal(got, raw) {
				t.Errorf("DecodeSized() = %v, want %v", got, raw)
			}
		})
	}
	if _, err := DecodeSized("!!", 1); err == nil {
		t.Error("DecodeSized accepted invalid input")
	}
}
