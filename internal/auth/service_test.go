package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signClaims(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestIssueAndVerify(t *testing.T) {
	svc := NewService(testSecret, time.Hour)

	token, err := svc.IssueToken(42, "alice")
	require.NoError(t, err)

	id, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: 42, Username: "alice"}, id)
}

func TestVerifyNumericSubject(t *testing.T) {
	svc := NewService(testSecret, time.Hour)
	token := signClaims(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
		"sub":      1,
		"username": "legacy",
		"exp":      time.Now().Add(time.Minute).Unix(),
	})

	id, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: 1, Username: "legacy"}, id)
}

func TestVerifyRejects(t *testing.T) {
	svc := NewService(testSecret, time.Hour)
	future := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name  string
		token func(t *testing.T) string
	}{
		{
			name: "garbage",
			token: func(t *testing.T) string {
				return "not-a-token"
			},
		},
		{
			name: "wrong secret",
			token: func(t *testing.T) string {
				return signClaims(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"sub": "1", "exp": future})
			},
		},
		{
			name: "expired",
			token: func(t *testing.T) string {
				return signClaims(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
					"sub": "1",
					"exp": time.Now().Add(-time.Minute).Unix(),
				})
			},
		},
		{
			name: "unsigned",
			token: func(t *testing.T) string {
				return signClaims(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, jwt.MapClaims{"sub": "1", "exp": future})
			},
		},
		{
			name: "missing subject",
			token: func(t *testing.T) string {
				return signClaims(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"username": "x", "exp": future})
			},
		},
		{
			name: "non-numeric subject",
			token: func(t *testing.T) string {
				return signClaims(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "alice", "exp": future})
			},
		},
		{
			name: "fractional subject",
			token: func(t *testing.T) string {
				return signClaims(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": 1.5, "exp": future})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Verify(tt.token(t))
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestIssuedTokenExpires(t *testing.T) {
	svc := NewService(testSecret, time.Minute)
	issued := time.Now()
	svc.now = func() time.Time { return issued }

	token, err := svc.IssueToken(7, "bob")
	require.NoError(t, err)

	svc.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
