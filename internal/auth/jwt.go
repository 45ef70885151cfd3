package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "softspace-backend"

// Token audiences. An account token never authorizes as a guest and vice versa.
const (
	AudienceAccount = "account"
	AudienceGuest   = "guest"
)

var ErrInvalidToken = errors.New("invalid token")

// CustomClaims includes standard JWT claims plus our custom ones. Account
// tokens carry UserID, guest tokens carry GuestID; never both.
type CustomClaims struct {
	UserID  uuid.UUID `json:"user_id,omitempty"`
	GuestID string    `json:"guest_id,omitempty"`
	jwt.RegisteredClaims
}

// Identity converts verified claims into a request identity.
func (c *CustomClaims) Identity() Identity {
	return Identity{UserID: c.UserID, GuestID: c.GuestID}
}

// NewAccessToken generates a signed account token.
func NewAccessToken(userID uuid.UUID, jwtSecret string, expiration time.Duration) (string, error) {
	now := time.Now()
	claims := CustomClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   userID.String(),
			Audience:  jwt.ClaimStrings{AudienceAccount},
		},
	}
	return sign(claims, jwtSecret)
}

// NewGuestToken mints the claim that binds a guest identifier to requests.
func NewGuestToken(guestID string, jwtSecret string, expiration time.Duration) (string, error) {
	if guestID == "" {
		return "", fmt.Errorf("%w: empty guest id", ErrInvalidToken)
	}
	now := time.Now()
	claims := CustomClaims{
		GuestID: guestID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   "guest:" + guestID,
			Audience:  jwt.ClaimStrings{AudienceGuest},
		},
	}
	return sign(claims, jwtSecret)
}

func sign(claims CustomClaims, jwtSecret string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(jwtSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies signature, expiry and issuer, then checks that the
// claims match exactly one audience.
func ParseToken(tokenString, jwtSecret string) (*CustomClaims, error) {
	claims := &CustomClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(jwtSecret), nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	hasUser := claims.UserID != uuid.Nil
	hasGuest := claims.GuestID != ""
	switch {
	case hasUser && !hasGuest && hasAudience(claims, AudienceAccount):
	case hasGuest && !hasUser && hasAudience(claims, AudienceGuest):
	default:
		return nil, fmt.Errorf("%w: claims do not match token audience", ErrInvalidToken)
	}
	return claims, nil
}

func hasAudience(claims *CustomClaims, aud string) bool {
	for _, a := range claims.Audience {
		if a == aud {
			return true
		}
	}
	return false
}
