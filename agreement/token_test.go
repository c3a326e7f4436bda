package agreement

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Unix(1_800_000_000, 0)
	tok := signedToken(t, jwt.MapClaims{"exp": exp.Unix(), "sub": "consumer"})

	got, err := TokenExpiry(tok)
	require.NoError(t, err)
	assert.True(t, got.Equal(exp))

	got, err = TokenExpiry("Bearer " + tok)
	require.NoError(t, err)
	assert.True(t, got.Equal(exp))

	got, err = TokenExpiry(signedToken(t, jwt.MapClaims{"exp": "1800000000"}))
	require.NoError(t, err)
	assert.True(t, got.Equal(exp))
}

func TestTokenExpiry_Invalid(t *testing.T) {
	cases := map[string]string{
		"not a token":     "definitely-not-a-jwt",
		"missing exp":     signedToken(t, jwt.MapClaims{"sub": "x"}),
		"non numeric exp": signedToken(t, jwt.MapClaims{"exp": "tomorrow"}),
		"object exp":      signedToken(t, jwt.MapClaims{"exp": map[string]any{"v": 1}}),
		"NaN exp":         signedToken(t, jwt.MapClaims{"exp": "NaN"}),
		"infinite exp":    signedToken(t, jwt.MapClaims{"exp": "+Inf"}),
		"huge exp":        signedToken(t, jwt.MapClaims{"exp": "1e300"}),
		"empty":           "",
	}
	for name, tok := range cases {
		_, err := TokenExpiry(tok)
		assert.Error(t, err, name)
	}
}

func TestTokenValid_Margin(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	ok, err := tokenValid(signedToken(t, jwt.MapClaims{"exp": now.Add(31 * time.Second).Unix()}), now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = tokenValid(signedToken(t, jwt.MapClaims{"exp": now.Add(29 * time.Second).Unix()}), now)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = tokenValid(signedToken(t, jwt.MapClaims{"exp": now.Add(30 * time.Second).Unix()}), now)
	require.NoError(t, err)
	assert.False(t, ok, "exactly at the margin is already expired")

	ok, err = tokenValid("garbage", now)
	assert.Error(t, err)
	assert.False(t, ok)
}
