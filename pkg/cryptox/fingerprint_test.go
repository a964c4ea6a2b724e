package cryptox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFingerprint(t *testing.T) {
	t.Parallel()

	fp1a := Fingerprint("access-token-1")
	fp1b := Fingerprint("access-token-1")
	fp2 := Fingerprint("access-token-2")

	require.Equal(t, fp1a, fp1b, "fingerprint should be deterministic")
	require.NotEqual(t, fp1a, fp2, "different tokens should have different fingerprints")
	require.Len(t, fp1a, FingerprintSize)
	require.NotContains(t, fp1a, "access")
	require.Empty(t, Fingerprint(""))
}
