package crypto

import (
	"bytes"
	"errors"
	"sync"
	"testing"
)

func newReadyBinding(t *testing.T, opts ...BindingOption) *Binding {
	t.Helper()
	b := NewBinding(opts...)
	if err := b.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	return b
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("entropy exhausted")
}

func TestBinding_InitIdempotent(t *testing.T) {
	b := NewBinding()
	if b.Ready() {
		t.Fatal("Ready() = true before Init")
	}
	if err := b.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	sizes := b.Sizes()
	if err := b.Init(); err != nil {
		t.Fatalf("second Init() error = %v", err)
	}
	if b.Sizes() != sizes {
		t.Error("Sizes changed after second Init")
	}
	if !b.Ready() {
		t.Error("Ready() = false after Init")
	}
}

func TestBinding_UnknownSchemeUnavailable(t *testing.T) {
	tests := []struct {
		name string
		opt  BindingOption
	}{
		{"signature", WithSignatureScheme("Falcon-512")},
		{"kem", WithKEMScheme("NTRU-HPS-2048-677")},
		{"no entropy", WithRandom(nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBinding(tt.opt)
			err := b.Init()
			if !errors.Is(err, ErrPrimitiveUnavailable) {
				t.Fatalf("Init() error = %v, want ErrPrimitiveUnavailable", err)
			}
			if !errors.Is(b.Init(), ErrPrimitiveUnavailable) {
				t.Error("second Init() did not return the same failure")
			}
			if _, err := b.GenerateKeypair(SchemeSignature); !errors.Is(err, ErrPrimitiveUnavailable) {
				t.Errorf("GenerateKeypair() error = %v, want ErrPrimitiveUnavailable", err)
			}
		})
	}
}

func TestBinding_OperationsBeforeInit(t *testing.T) {
	b := NewBinding()
	if _, err := b.GenerateKeypair(SchemeSignature); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("GenerateKeypair() error = %v, want ErrNotInitialized", err)
	}
	if _, err := b.Sign(nil, nil); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Sign() error = %v, want ErrNotInitialized", err)
	}
	if _, err := b.Encapsulate(nil); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Encapsulate() error = %v, want ErrNotInitialized", err)
	}
	if _, err := b.Decapsulate(nil, nil); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Decapsulate() error = %v, want ErrNotInitialized", err)
	}
	if !errors.Is(ErrNotInitialized, ErrPrimitiveUnavailable) {
		t.Error("ErrNotInitialized does not match ErrPrimitiveUnavailable")
	}
}

func TestBinding_Sizes(t *testing.T) {
	tests := []struct {
		sig, kem string
		want     Sizes
	}{
		{
			sig: "ML-DSA-65", kem: "ML-KEM-768",
			want: Sizes{
				SignaturePublicKey: 1952,
				SignatureSecretKey: 4032,
				SignatureMax:       3309,
				KEMPublicKey:       1184,
				KEMSecretKey:       2400,
				KEMCiphertext:      1088,
				SharedSecret:       32,
			},
		},
		{
			sig: "ML-DSA-44", kem: "ML-KEM-512",
			want: Sizes{
				SignaturePublicKey: 1312,
				SignatureSecretKey: 2560,
				SignatureMax:       2420,
				KEMPublicKey:       800,
				KEMSecretKey:       1632,
				KEMCiphertext:      768,
				SharedSecret:       32,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.sig+"/"+tt.kem, func(t *testing.T) {
			b := newReadyBinding(t, WithSignatureScheme(tt.sig), WithKEMScheme(tt.kem))
			if got := b.Sizes(); got != tt.want {
				t.Errorf("Sizes() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestBinding_GenerateKeypair(t *testing.T) {
	b := newReadyBinding(t)
	sizes := b.Sizes()

	for _, scheme := range []Scheme{SchemeSignature, SchemeKEM} {
		t.Run(scheme.String(), func(t *testing.T) {
			kp, err := b.GenerateKeypair(scheme)
			if err != nil {
				t.Fatalf("GenerateKeypair() error = %v", err)
			}
			if kp.Algorithm != scheme {
				t.Errorf("Algorithm = %v, want %v", kp.Algorithm, scheme)
			}
			if len(kp.PublicKey) != sizes.PublicKeySize(scheme) {
				t.Errorf("PublicKey size = %d, want %d", len(kp.PublicKey), sizes.PublicKeySize(scheme))
			}
			if len(kp.SecretKey) != sizes.SecretKeySize(scheme) {
				t.Errorf("SecretKey size = %d, want %d", len(kp.SecretKey), sizes.SecretKeySize(scheme))
			}

			other, err := b.GenerateKeypair(scheme)
			if err != nil {
				t.Fatalf("GenerateKeypair() error = %v", err)
			}
			if bytes.Equal(kp.PublicKey, other.PublicKey) {
				t.Error("Generated keypairs have identical public keys")
			}
		})
	}
}

func TestBinding_GenerateKeypair_Failures(t *testing.T) {
	b := newReadyBinding(t, WithRandom(failingReader{}))
	if _, err := b.GenerateKeypair(SchemeSignature); !errors.Is(err, ErrGenerationFailed) {
		t.Errorf("GenerateKeypair() error = %v, want ErrGenerationFailed", err)
	}

	b = newReadyBinding(t)
	if _, err := b.GenerateKeypair(Scheme(42)); !errors.Is(err, ErrUnknownScheme) {
		t.Errorf("GenerateKeypair() error = %v, want ErrUnknownScheme", err)
	}
}

func TestBinding_SignVerify(t *testing.T) {
	b := newReadyBinding(t)
	kp, err := b.GenerateKeypair(SchemeSignature)
	if err != nil {
		t.Fatalf("GenerateKeypair() error = %v", err)
	}

	msg := []byte("challenge nonce bytes")
	sig, err := b.Sign(kp.SecretKey, msg)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if len(sig) == 0 || len(sig) > b.Sizes().SignatureMax {
		t.Fatalf("signature size = %d", len(sig))
	}
	if err := b.Verify(kp.PublicKey, msg, sig); err != nil {
		t.Errorf("Verify() error = %v", err)
	}

	if err := b.Verify(kp.PublicKey, []byte("different challenge"), sig); !errors.Is(err, ErrSignatureVerificationFailed) {
		t.Errorf("Verify(other message) error = %v, want ErrSignatureVerificationFailed", err)
	}

	other, _ := b.GenerateKeypair(SchemeSignature)
	if err := b.Verify(other.PublicKey, msg, sig); !errors.Is(err, ErrSignatureVerificationFailed) {
		t.Errorf("Verify(other key) error = %v, want ErrSignatureVerificationFailed", err)
	}

	if err := b.Verify(kp.PublicKey[:10], msg, sig); !errors.Is(err, ErrInvalidKeySize) {
		t.Errorf("Verify(short key) error = %v, want ErrInvalidKeySize", err)
	}
}

func TestBinding_SignDoesNotMutateInputs(t *testing.T) {
	b := newReadyBinding(t)
	kp, _ := b.GenerateKeypair(SchemeSignature)
	before := append([]byte(nil), kp.SecretKey...)
	msg := []byte("nonce")

	if _, err := b.Sign(kp.SecretKey, msg); err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if !bytes.Equal(before, kp.SecretKey) {
		t.Error("Sign() modified the caller's secret key")
	}
	if string(msg) != "nonce" {
		t.Error("Sign() modified the caller's message")
	}
}

func TestBinding_SignInvalidKeySize(t *testing.T) {
	b := newReadyBinding(t)
	kp, _ := b.GenerateKeypair(SchemeSignature)
	size := b.Sizes().SignatureSecretKey

	lengths := []int{0, 1, size - 1, size + 1, size * 2}
	for _, n := range lengths {
		key := make([]byte, n)
		copy(key, kp.SecretKey)
		if _, err := b.Sign(key, []byte("msg")); !errors.Is(err, ErrInvalidKeySize) {
			t.Errorf("Sign(len=%d) error = %v, want ErrInvalidKeySize", n, err)
		}
	}
}

func TestBinding_KEMRoundTrip(t *testing.T) {
	b := newReadyBinding(t)
	sizes := b.Sizes()

	for i := 0; i < 10; i++ {
		kp, err := b.GenerateKeypair(SchemeKEM)
		if err != nil {
			t.Fatalf("GenerateKeypair() error = %v", err)
		}

		es, err := b.Encapsulate(kp.PublicKey)
		if err != nil {
			t.Fatalf("Encapsulate() error = %v", err)
		}
		if len(es.Ciphertext) != sizes.KEMCiphertext {
			t.Errorf("ciphertext size = %d, want %d", len(es.Ciphertext), sizes.KEMCiphertext)
		}
		if len(es.SharedSecret) != sizes.SharedSecret {
			t.Errorf("shared secret size = %d, want %d", len(es.SharedSecret), sizes.SharedSecret)
		}

		ss, err := b.Decapsulate(es.Ciphertext, kp.SecretKey)
		if err != nil {
			t.Fatalf("Decapsulate() error = %v", err)
		}
		if !bytes.Equal(ss, es.SharedSecret) {
			t.Fatalf("iteration %d: decapsulated secret differs from encapsulated secret", i)
		}
	}
}

func TestBinding_KEMMismatchedKey(t *testing.T) {
	b := newReadyBinding(t)

	for i := 0; i < 25; i++ {
		recipient, _ := b.GenerateKeypair(SchemeKEM)
		unrelated, _ := b.GenerateKeypair(SchemeKEM)

		es, err := b.Encapsulate(recipient.PublicKey)
		if err != nil {
			t.Fatalf("Encapsulate() error = %v", err)
		}
		ss, err := b.Decapsulate(es.Ciphertext, unrelated.SecretKey)
		if err != nil {
			t.Fatalf("Decapsulate() with unrelated key error = %v, want nil", err)
		}
		if bytes.Equal(ss, es.SharedSecret) {
			t.Fatalf("iteration %d: unrelated key produced the same shared secret", i)
		}
	}
}

func TestBinding_KEMInvalidBufferSize(t *testing.T) {
	b := newReadyBinding(t)
	kp, _ := b.GenerateKeypair(SchemeKEM)
	es, _ := b.Encapsulate(kp.PublicKey)

	if _, err := b.Encapsulate(kp.PublicKey[1:]); !errors.Is(err, ErrInvalidBufferSize) {
		t.Errorf("Encapsulate(short) error = %v, want ErrInvalidBufferSize", err)
	}
	if _, err := b.Encapsulate(append(kp.PublicKey, 0)); !errors.Is(err, ErrInvalidBufferSize) {
		t.Errorf("Encapsulate(long) error = %v, want ErrInvalidBufferSize", err)
	}
	if _, err := b.Decapsulate(es.Ciphertext[1:], kp.SecretKey); !errors.Is(err, ErrInvalidBufferSize) {
		t.Errorf("Decapsulate(short ct) error = %v, want ErrInvalidBufferSize", err)
	}
	if _, err := b.Decapsulate(es.Ciphertext, kp.SecretKey[1:]); !errors.Is(err, ErrInvalidBufferSize) {
		t.Errorf("Decapsulate(short sk) error = %v, want ErrInvalidBufferSize", err)
	}
}

func TestBinding_EncapsulateReturnsOwnedBuffers(t *testing.T) {
	b := newReadyBinding(t)
	kp, _ := b.GenerateKeypair(SchemeKEM)
	pub := append([]byte(nil), kp.PublicKey...)

	es, err := b.Encapsulate(kp.PublicKey)
	if err != nil {
		t.Fatalf("Encapsulate() error = %v", err)
	}
	// Scribbling over the caller's input must not affect the result.
	Zeroize(kp.PublicKey)

	ss, err := b.Decapsulate(es.Ciphertext, kp.SecretKey)
	if err != nil {
		t.Fatalf("Decapsulate() error = %v", err)
	}
	if !bytes.Equal(ss, es.SharedSecret) {
		t.Error("shared secret changed after caller mutated its input")
	}
	copy(kp.PublicKey, pub)
}

func TestBinding_PublicKeyFromSecret(t *testing.T) {
	b := newReadyBinding(t)

	for _, scheme := range []Scheme{SchemeSignature, SchemeKEM} {
		t.Run(scheme.String(), func(t *testing.T) {
			kp, _ := b.GenerateKeypair(scheme)
			pub, err := b.PublicKeyFromSecret(scheme, kp.SecretKey)
			if err != nil {
				t.Fatalf("PublicKeyFromSecret() error = %v", err)
			}
			if !bytes.Equal(pub, kp.PublicKey) {
				t.Error("recovered public key does not match")
			}
			if _, err := b.PublicKeyFromSecret(scheme, kp.SecretKey[2:]); !errors.Is(err, ErrInvalidKeySize) {
				t.Errorf("PublicKeyFromSecret(short) error = %v, want ErrInvalidKeySize", err)
			}
		})
	}
}

func TestBinding_ConcurrentCallsSerialized(t *testing.T) {
	b := newReadyBinding(t)
	kp, _ := b.GenerateKeypair(SchemeSignature)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := []byte{byte(i)}
			sig, err := b.Sign(kp.SecretKey, msg)
			if err != nil {
				errs <- err
				return
			}
			errs <- b.Verify(kp.PublicKey, msg, sig)
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("concurrent sign/verify error = %v", err)
		}
	}
}

func TestKeyPair_Destroy(t *testing.T) {
	b := newReadyBinding(t)
	kp, _ := b.GenerateKeypair(SchemeSignature)
	secret := kp.SecretKey

	kp.Destroy()
	if kp.SecretKey != nil {
		t.Error("SecretKey not cleared")
	}
	for i, v := range secret {
		if v != 0 {
			t.Fatalf("byte %d not zeroed", i)
		}
	}

	var nilKP *KeyPair
	nilKP.Destroy()
}
