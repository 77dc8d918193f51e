package pqportal

import (
	"context"
	"errors"
	"strings"

	"github.com/pqportal/client-go/internal/crypto"
)

// Registration is the result of publishing a principal's public key.
type Registration struct {
	PrincipalID string
	PublicKey   []byte
	Algorithm   string
	Status      RegistrationStatus
}

// Register generates a signature keypair for principalID, stores the secret
// key locally and publishes the public key.
//
// If publication fails the secret key stays in the key store: a duplicate is
// reported as ErrRegistrationRejected and a transient failure as
// ErrRegistrationUnavailable, after which ResumeRegistration resubmits the
// same public key.
//
// Register never replaces a stored key; it fails with ErrKeyExists instead.
// To start over with a new keypair, call RemoveKey first.
func (c *Client) Register(ctx context.Context, principalID string) (*Registration, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(principalID) == "" {
		return nil, ErrInvalidPrincipal
	}
	if c.keys.HasKey(principalID) {
		return nil, &KeyStoreError{Op: "put", PrincipalID: principalID, Err: ErrKeyExists}
	}

	kp, err := c.binding.GenerateKeypair(crypto.SchemeSignature)
	if err != nil {
		c.logger.Error("keypair generation failed", "principal_id", principalID, "error", err)
		return nil, &PrimitiveError{Op: "generate", Err: err}
	}
	defer kp.Destroy()

	if err := c.keys.Put(principalID, kp.SecretKey); err != nil {
		return nil, &KeyStoreError{Op: "put", PrincipalID: principalID, Err: err}
	}
	c.logger.Info("secret key stored", "principal_id", principalID, "algorithm", c.binding.SignatureScheme())

	return c.submitRegistration(ctx, principalID, kp.PublicKey)
}

// ResumeRegistration resubmits the public key of the locally stored secret
// key without generating a new keypair.
func (c *Client) ResumeRegistration(ctx context.Context, principalID string) (*Registration, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	handle, err := c.keys.Get(principalID)
	if err != nil {
		return nil, &KeyStoreError{Op: "get", PrincipalID: principalID, Err: err}
	}
	pub, err := c.binding.PublicKeyFromSecret(crypto.SchemeSignature, handle.Bytes())
	handle.Destroy()
	if err != nil {
		return nil, &PrimitiveError{Op: "public key", Err: err}
	}

	return c.submitRegistration(ctx, principalID, pub)
}

func (c *Client) submitRegistration(ctx context.Context, principalID string, publicKey []byte) (*Registration, error) {
	alg := c.binding.SignatureScheme()
	status, err := c.identity.Register(ctx, principalID, publicKey, alg)
	if err != nil {
		svcErr := &ServiceError{Op: "register", Err: err}
		var inner *ServiceError
		if errors.As(err, &inner) {
			svcErr.StatusCode = inner.StatusCode
		}
		if IsTransient(err) || errors.Is(err, context.Canceled) {
			svcErr.Transient = IsTransient(err)
			svcErr.Kind = ErrRegistrationUnavailable
		} else {
			svcErr.Kind = ErrRegistrationRejected
		}
		c.logger.Warn("registration not accepted", "principal_id", principalID, "transient", svcErr.Transient, "error", err)
		return nil, svcErr
	}

	if status == RegistrationDuplicate {
		c.logger.Warn("registration rejected as duplicate", "principal_id", principalID)
		return nil, &ServiceError{Op: "register", StatusCode: 409, Kind: ErrRegistrationRejected}
	}
	if status != RegistrationAccepted {
		return nil, &ServiceError{Op: "register", Kind: ErrRegistrationRejected}
	}

	c.logger.Info("registration accepted", "principal_id", principalID)
	return &Registration{
		PrincipalID: principalID,
		PublicKey:   publicKey,
		Algorithm:   alg,
		Status:      status,
	}, nil
}

// RemoveKey destroys the locally stored secret key for principalID.
func (c *Client) RemoveKey(principalID string) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if err := c.keys.Remove(principalID); err != nil {
		return &KeyStoreError{Op: "remove", PrincipalID: principalID, Err: err}
	}
	c.logger.Info("secret key removed", "principal_id", principalID)
	return nil
}
