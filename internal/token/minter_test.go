package token

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMint_SignedCredential(t *testing.T) {
	req := require.New(t)
	m := NewMinter("app-1", "super-secret", time.Hour)

	cred, err := m.Mint("math101")
	req.NoError(err)
	req.NotEmpty(cred.Token)
	req.NotEmpty(cred.ParticipantID)
	req.WithinDuration(time.Now().Add(time.Hour), cred.ExpiresAt, 5*time.Second)

	n, convErr := strconv.Atoi(cred.ParticipantID)
	req.NoError(convErr, "participant id is numeric")
	req.GreaterOrEqual(n, 0)
	req.Less(n, 100000)

	claims, err := m.ParseAndValidate(cred.Token, "math101")
	req.NoError(err)
	req.Equal(cred.ParticipantID, claims.Subject)
	req.Equal("app-1", claims.Issuer)
}

func TestMint_DegradesWithoutSecret(t *testing.T) {
	req := require.New(t)
	m := NewMinter("app-1", "", time.Hour)

	cred, err := m.Mint("math101")
	req.ErrorIs(err, ErrCredentialUnavailable)
	req.Empty(cred.Token, "degraded session has no credential")
	req.NotEmpty(cred.ParticipantID, "fallback id is still issued")
}

func TestParseAndValidate_RejectsWrongChannel(t *testing.T) {
	req := require.New(t)
	m := NewMinter("app-1", "super-secret", time.Hour)

	cred, err := m.Mint("math101")
	req.NoError(err)

	_, err = m.ParseAndValidate(cred.Token, "bio202")
	req.Error(err)
}

func TestParseAndValidate_RejectsTamperedToken(t *testing.T) {
	req := require.New(t)
	m := NewMinter("app-1", "super-secret", time.Hour)
	other := NewMinter("app-1", "different-secret", time.Hour)

	cred, err := other.Mint("math101")
	req.NoError(err)

	_, err = m.ParseAndValidate(cred.Token, "math101")
	req.Error(err)
}

func TestParseAndValidate_RejectsExpired(t *testing.T) {
	req := require.New(t)
	m := NewMinter("app-1", "super-secret", time.Minute)
	m.now = func() time.Time { return time.Now().Add(-2 * time.Minute) }

	cred, err := m.Mint("math101")
	req.NoError(err)

	m.now = time.Now
	_, err = m.ParseAndValidate(cred.Token, "math101")
	req.Error(err)
}

func TestFallbackIDs_MostlyUnique(t *testing.T) {
	seen := map[string]int{}
	for i := 0; i < 200; i++ {
		seen[fallbackID()]++
	}
	if len(seen) < 150 {
		t.Fatalf("fallback ids look degenerate: %d unique of 200", len(seen))
	}
}
