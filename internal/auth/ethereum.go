package auth

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/roach88/tally/internal/ir"
)

// personalHash is the EIP-191 hash wallets sign for personal_sign.
func personalHash(message string) []byte {
	msg := []byte(message)
	prefix := []byte("\x19Ethereum Signed Message:\n" + strconv.Itoa(len(msg)))
	return ethcrypto.Keccak256(prefix, msg)
}

// VerifyEthereum recovers the address that signed message and returns
// it as a checksummed principal. The signature is 65 bytes of hex,
// optionally 0x-prefixed, with v either 0/1 or 27/28.
func VerifyEthereum(message, signature string) (ir.Principal, error) {
	sigHex := strings.TrimSpace(signature)
	if strings.HasPrefix(sigHex, "0x") || strings.HasPrefix(sigHex, "0X") {
		sigHex = sigHex[2:]
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil || len(sig) != 65 {
		return "", fmt.Errorf("invalid signature format")
	}

	if sig[64] >= 27 {
		sig[64] -= 27
	}

	pub, err := ethcrypto.SigToPub(personalHash(message), sig)
	if err != nil {
		return "", fmt.Errorf("signature recovery failed: %w", err)
	}
	return ir.Principal(ethcrypto.PubkeyToAddress(*pub).Hex()), nil
}

// ProveEthereum verifies the signature and, when it recovers to want,
// returns a context carrying want for the Context authorizer.
func ProveEthereum(ctx context.Context, want ir.Principal, message, signature string) (context.Context, error) {
	got, err := VerifyEthereum(message, signature)
	if err != nil {
		return ctx, err
	}
	if !strings.EqualFold(string(got), string(Normalize(want))) {
		return ctx, fmt.Errorf("signature is from %s, not %s", got, want)
	}
	return WithPrincipal(ctx, got), nil
}

// Signer signs personal messages with a secp256k1 key.
type Signer struct {
	key *ecdsa.PrivateKey
}

// GenerateSigner creates a signer with a fresh random key.
func GenerateSigner() (*Signer, error) {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &Signer{key: key}, nil
}

// NewSigner loads a hex-encoded private key.
func NewSigner(keyHex string) (*Signer, error) {
	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(keyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("load key: %w", err)
	}
	return &Signer{key: key}, nil
}

// Principal returns the signer's checksummed address.
func (s *Signer) Principal() ir.Principal {
	return ir.Principal(ethcrypto.PubkeyToAddress(s.key.PublicKey).Hex())
}

// Sign returns a 0x-prefixed personal_sign signature with v in 27/28.
func (s *Signer) Sign(message string) (string, error) {
	sig, err := ethcrypto.Sign(personalHash(message), s.key)
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig), nil
}
