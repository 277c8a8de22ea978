package middleware

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JWTConfig holds JWT validation configuration.
type JWTConfig struct {
	Secret string
	Issuer string
}

// jwtClaims is the wire format of operator tokens issued by the identity
// service the clinic dashboard logs in against.
type jwtClaims struct {
	jwt.RegisteredClaims
	OperatorID uuid.UUID `json:"operator_id"`
	Email      string    `json:"email"`
}

// JWTValidator validates operator bearer tokens.
type JWTValidator struct {
	config *JWTConfig
}

// NewJWTValidator creates a new JWT validator.
func NewJWTValidator(config *JWTConfig) *JWTValidator {
	return &JWTValidator{config: config}
}

// ValidateToken parses and validates a signed token, returning its claims.
func (v *JWTValidator) ValidateToken(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwtClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(v.config.Secret), nil
	}, jwt.WithIssuer(v.config.Issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*jwtClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	return &TokenClaims{
		OperatorID: claims.OperatorID,
		Email:      claims.Email,
	}, nil
}

var _ TokenValidator = (*JWTValidator)(nil)
