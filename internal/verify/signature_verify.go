package verify

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
)

// Errors returned by VerifyDetachedSignature.
var (
	ErrInvalidPublicKey  = errors.New("verify: invalid public key size")
	ErrInvalidSignature  = errors.New("verify: invalid signature size")
	ErrSignatureMismatch = errors.New("verify: signature does not match")
)

// VerifyDetachedSignature checks a raw Ed25519 signature over message,
// for callers verifying something outside a Manifest's own Verify
// method (e.g. a hex-encoded signature attached to an exported evidence
// bundle rather than embedded in a trailer).
func VerifyDetachedSignature(message, signature, pubKey []byte) error {
	if len(pubKey) != ed25519.PublicKeySize {
		return ErrInvalidPublicKey
	}
	if len(signature) != ed25519.SignatureSize {
		return ErrInvalidSignature
	}
	if !ed25519.Verify(ed25519.PublicKey(pubKey), message, signature) {
		return ErrSignatureMismatch
	}
	return nil
}

// VerifyDetachedSignatureHex is VerifyDetachedSignature for hex-encoded
// signature and public key inputs. No command in the module calls it.
func VerifyDetachedSignatureHex(message []byte, signatureHex, pubKeyHex string) error {
	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return ErrInvalidSignature
	}
	pub, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return ErrInvalidPublicKey
	}
	return VerifyDetachedSignature(message, sig, pub)
}
