// Package idservice is an in-memory identity service: it records principals'
// public signature keys, issues single-use challenges and verifies signed
// challenges, answering with an EdDSA-signed session token.
//
// It backs cmd/identityd and the integration tests. State is not persisted.
package idservice
