package auth

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tally/internal/ir"
)

const addrLower = "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"
const addrChecksum = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

func TestNormalize(t *testing.T) {
	assert.Equal(t, ir.Principal(addrChecksum), Normalize(addrLower))
	assert.Equal(t, ir.Principal(addrChecksum), Normalize(" "+addrChecksum+" "))
	assert.Equal(t, ir.Principal("alice"), Normalize("alice"))
}

func TestStatic(t *testing.T) {
	s := NewStatic("alice", addrLower)
	ctx := context.Background()

	assert.True(t, s.Authorize(ctx, "alice"))
	assert.True(t, s.Authorize(ctx, addrChecksum), "addresses match in any case")
	assert.False(t, s.Authorize(ctx, "bob"))

	s.Grant("bob")
	assert.True(t, s.Authorize(ctx, "bob"))
	s.Revoke("bob")
	assert.False(t, s.Authorize(ctx, "bob"))
}

func TestContext(t *testing.T) {
	var a Context
	ctx := context.Background()

	assert.False(t, a.Authorize(ctx, "alice"), "no principal attached")

	ctx = WithPrincipal(ctx, "alice")
	assert.True(t, a.Authorize(ctx, "alice"))
	assert.False(t, a.Authorize(ctx, "bob"))

	p, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, ir.Principal("alice"), p)

	_, ok = FromContext(WithPrincipal(context.Background(), ""))
	assert.False(t, ok)
}

func TestEthereum_SignAndVerify(t *testing.T) {
	signer, err := GenerateSigner()
	require.NoError(t, err)

	sig, err := signer.Sign("tally:claim:points")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sig, "0x"))
	assert.Len(t, sig, 2+130)

	got, err := VerifyEthereum("tally:claim:points", sig)
	require.NoError(t, err)
	assert.Equal(t, signer.Principal(), got)

	// v as 0/1 without prefix is accepted too.
	raw := []byte(sig[2:])
	v := raw[128:]
	switch string(v) {
	case "1b":
		copy(v, "00")
	case "1c":
		copy(v, "01")
	}
	got, err = VerifyEthereum("tally:claim:points", string(raw))
	require.NoError(t, err)
	assert.Equal(t, signer.Principal(), got)
}

func TestEthereum_WrongMessageRecoversOtherAddress(t *testing.T) {
	signer, err := GenerateSigner()
	require.NoError(t, err)

	sig, err := signer.Sign("hello")
	require.NoError(t, err)

	got, err := VerifyEthereum("goodbye", sig)
	if err == nil {
		assert.NotEqual(t, signer.Principal(), got)
	}
}

func TestEthereum_InvalidSignature(t *testing.T) {
	for _, sig := range []string{"", "0x1234", "zz" + strings.Repeat("0", 128)} {
		_, err := VerifyEthereum("hello", sig)
		assert.Error(t, err, "signature %q", sig)
	}
}

func TestProveEthereum(t *testing.T) {
	signer, err := GenerateSigner()
	require.NoError(t, err)
	other, err := GenerateSigner()
	require.NoError(t, err)

	sig, err := signer.Sign("challenge-1")
	require.NoError(t, err)

	ctx, err := ProveEthereum(context.Background(), ir.Principal(strings.ToLower(string(signer.Principal()))), "challenge-1", sig)
	require.NoError(t, err)
	assert.True(t, Context{}.Authorize(ctx, signer.Principal()))

	_, err = ProveEthereum(context.Background(), other.Principal(), "challenge-1", sig)
	assert.Error(t, err)
}

func TestNewSigner_FromHex(t *testing.T) {
	// Well-known test key; never use it for anything real.
	s, err := NewSigner("0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	require.NoError(t, err)
	assert.Equal(t, ir.Principal("0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"), s.Principal())

	_, err = NewSigner("not-hex")
	assert.Error(t, err)
}
