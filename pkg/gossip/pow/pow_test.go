package pow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSolveProducesVerifiableNonce(t *testing.T) {
	const challenge = 0x00000000000000AA
	const port = 7002
	const difficulty = 4 // four leading hex-zero digits, cheap enough for a unit test

	nonce := Solve(challenge, port, difficulty)
	require.True(t, Verify(challenge, nonce, port, difficulty))
}

func TestVerifyRejectsWeakNonce(t *testing.T) {
	require.False(t, Verify(0xAA, 0, 7002, 8))
}

func TestVerifyZeroDifficultyAlwaysPasses(t *testing.T) {
	require.True(t, Verify(0xAA, 12345, 7002, 0))
}

func TestVerifyIsBoundToPortAndChallenge(t *testing.T) {
	nonce := Solve(0x01, 1000, 4)
	require.True(t, Verify(0x01, nonce, 1000, 4))
	// A verifier using a different challenge or port must derive a
	// different digest and so, overwhelmingly likely, reject the nonce.
	require.False(t, Verify(0x02, nonce, 1000, 4))
	require.False(t, Verify(0x01, nonce, 1001, 4))
}

func TestRandomChallengeIsNonZeroEntropy(t *testing.T) {
	a, err := RandomChallenge()
	require.NoError(t, err)
	b, err := RandomChallenge()
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}
