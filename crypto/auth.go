package crypto

import (
	"encoding/binary"
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrInvalidProof indicates the proof signature did not verify.
	ErrInvalidProof = errors.New("crypto: invalid authorization proof")
	// ErrProofSignerMismatch indicates the recovered signer does not match the
	// claimed principal.
	ErrProofSignerMismatch = errors.New("crypto: proof signer mismatch")
)

// Proof is a recoverable secp256k1 signature authorizing a single module
// operation on behalf of Signer. Nonce provides replay protection and must be
// strictly increasing per signer.
type Proof struct {
	Signer    Address
	Nonce     uint64
	Signature []byte
}

// OperationDigest derives the 32-byte message a principal signs to authorize
// one invocation of module/method. The digest binds the principal address so a
// proof cannot be replayed for a different account.
func OperationDigest(module, method string, principal Address, nonce uint64) []byte {
	var nonceBuf [8]byte
	binary.BigEndian.PutUint64(nonceBuf[:], nonce)
	return ethcrypto.Keccak256(
		[]byte(module),
		[]byte{0x00},
		[]byte(method),
		[]byte{0x00},
		principal.Bytes(),
		nonceBuf[:],
	)
}

// SignOperation produces an authorization proof for module/method using the
// supplied key. The proof's signer is derived from the key.
func SignOperation(key *PrivateKey, module, method string, nonce uint64) (Proof, error) {
	if key == nil {
		return Proof{}, errors.New("crypto: signing key required")
	}
	signer := key.PubKey().Address()
	digest := OperationDigest(module, method, signer, nonce)
	sig, err := ethcrypto.Sign(digest, key.PrivateKey)
	if err != nil {
		return Proof{}, fmt.Errorf("crypto: sign operation: %w", err)
	}
	return Proof{Signer: signer, Nonce: nonce, Signature: sig}, nil
}

// Verify checks the proof against the expected module/method pair. The signer
// recovered from the signature must match the proof's claimed address.
func (p Proof) Verify(module, method string) error {
	if len(p.Signature) != 65 {
		return ErrInvalidProof
	}
	digest := OperationDigest(module, method, p.Signer, p.Nonce)
	pub, err := ethcrypto.SigToPub(digest, p.Signature)
	if err != nil {
		return ErrInvalidProof
	}
	recovered := ethcrypto.PubkeyToAddress(*pub).Bytes()
	if !p.Signer.Equal(NewAddress(p.Signer.Prefix(), recovered)) {
		return ErrProofSignerMismatch
	}
	return nil
}
