package jwt

import (
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const holder = "0x00000000000000000000000000000000000000A1"

func TestJWTService_IssueAndValidate(t *testing.T) {
	svc := NewJWTService("secret", 15*time.Minute)
	flowID := uuid.New()

	tok, err := svc.IssueFlowToken(flowID, holder)
	require.NoError(t, err)
	assert.NotEmpty(t, tok.Token)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), tok.ExpiresAt, 5*time.Second)

	claims, err := svc.ValidateToken(tok.Token)
	require.NoError(t, err)
	assert.Equal(t, flowID, claims.FlowID)
	assert.Equal(t, "0x00000000000000000000000000000000000000a1", claims.Holder)
	assert.Equal(t, flowID.String(), claims.Subject)
}

func TestJWTService_ValidateInvalidToken(t *testing.T) {
	svc := NewJWTService("secret", time.Minute)

	_, err := svc.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := NewJWTService("other-secret", time.Minute)
	tok, err := other.IssueFlowToken(uuid.New(), holder)
	require.NoError(t, err)
	_, err = svc.ValidateToken(tok.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTService_ValidateExpiredToken(t *testing.T) {
	svc := NewJWTService("secret", time.Minute)
	tok, err := svc.IssueFlowToken(uuid.New(), holder)
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = svc.ValidateToken(tok.Token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTService_ValidateWrongSigningMethod(t *testing.T) {
	svc := NewJWTService("secret", time.Minute)

	claims := gjwt.MapClaims{
		"flowId": uuid.NewString(),
		"holder": holder,
		"iss":    flowTokenIssuer,
		"exp":    time.Now().Add(time.Minute).Unix(),
	}
	unsigned := gjwt.NewWithClaims(gjwt.SigningMethodNone, claims)
	tokenStr, err := unsigned.SignedString(gjwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = svc.ValidateToken(tokenStr)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTService_RejectsForeignIssuer(t *testing.T) {
	svc := NewJWTService("secret", time.Minute)
	claims := gjwt.MapClaims{
		"flowId": uuid.NewString(),
		"holder": holder,
		"iss":    "someone-else",
		"exp":    time.Now().Add(time.Minute).Unix(),
	}
	tokenStr, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = svc.ValidateToken(tokenStr)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTService_SignFailure(t *testing.T) {
	orig := signJWTToken
	t.Cleanup(func() { signJWTToken = orig })
	signJWTToken = func(token *gjwt.Token, secret []byte) (string, error) {
		return "", errors.New("sign failed")
	}

	_, err := NewJWTService("secret", time.Minute).IssueFlowToken(uuid.New(), holder)
	assert.EqualError(t, err, "sign failed")
}
