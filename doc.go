// Package pqportal provides a Go client SDK for post-quantum principal
// authentication and key encapsulation.
//
// Principals register an ML-DSA-65 public key with an identity service and
// log in by signing a single-use challenge nonce. The secret key never leaves
// the local key store except as a copy handed to the primitive binding for
// the duration of one signature. ML-KEM-768 key encapsulation establishes
// shared keys between two parties over any [Transport].
//
// Basic usage:
//
//	identity, err := pqportal.NewHTTPIdentityService("https://id.example.com")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client, err := pqportal.New(identity)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	if _, err := client.Register(ctx, "alice"); err != nil {
//	    log.Fatal(err)
//	}
//
//	session, err := client.Login(ctx, "alice")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("authenticated until", session.ExpiresAt)
//
// Only an explicit positive verdict from the identity service authenticates.
// Malformed, partial or contradictory verdicts are denials.
//
// A mismatched KEM key pair yields a different shared key rather than an
// error. Callers must confirm keys before use, either with
// [SharedKey.ConfirmationTag] or by using [Client.EstablishKEM] and [Client.AcceptKEM],
// which perform the confirmation exchange.
package pqportal
