package jwt

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

const flowTokenIssuer = "stablepay"

// Claims binds a bearer token to one settlement flow and the paying wallet
type Claims struct {
	FlowID uuid.UUID `json:"flowId"`
	Holder string    `json:"holder"`
	jwt.RegisteredClaims
}

// FlowToken is handed to the payer when a flow starts
type FlowToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// JWTService handles JWT operations
type JWTService struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

var signJWTToken = func(token *jwt.Token, secret []byte) (string, error) {
	return token.SignedString(secret)
}

// NewJWTService creates a new JWT service
func NewJWTService(secret string, expiry time.Duration) *JWTService {
	return &JWTService{
		secret: []byte(secret),
		expiry: expiry,
		now:    time.Now,
	}
}

// IssueFlowToken signs a token that authorizes holder to drive flowID
func (s *JWTService) IssueFlowToken(flowID uuid.UUID, holder string) (*FlowToken, error) {
	now := s.now()
	expiresAt := now.Add(s.expiry)
	claims := &Claims{
		FlowID: flowID,
		Holder: strings.ToLower(holder),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    flowTokenIssuer,
			Subject:   flowID.String(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := signJWTToken(token, s.secret)
	if err != nil {
		return nil, err
	}
	return &FlowToken{Token: signed, ExpiresAt: expiresAt}, nil
}

// ValidateToken validates a JWT token and returns the claims
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithIssuer(flowTokenIssuer), jwt.WithTimeFunc(s.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.FlowID == uuid.Nil {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
