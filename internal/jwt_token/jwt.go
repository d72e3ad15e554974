package jwttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"civicdesk/pkg/domain"
	dErrors "civicdesk/pkg/domain-errors"
)

// Claims are the access-token claims issued by the identity provider.
// The subject carries the user ID.
type Claims struct {
	Role         string `json:"role"`
	DepartmentID string `json:"department_id,omitempty"`
	jwt.RegisteredClaims
}

// JWTService verifies identity-provider tokens. GenerateAccessToken exists for
// local development and tests; production tokens come from the provider.
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
}

func NewJWTService(signingKey string, issuer string, audience string) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
	}
}

func (s *JWTService) GenerateAccessToken(p domain.Principal, expiresIn time.Duration) (string, error) {
	claims := Claims{
		Role: string(p.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        uuid.NewString(),
		},
	}
	if p.DepartmentID != nil {
		claims.DepartmentID = p.DepartmentID.String()
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
}

func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithAudience(s.audience))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return claims, nil
}

// Principal converts verified claims into the request principal.
func (c *Claims) Principal() (domain.Principal, error) {
	userID, err := domain.ParseUserID(c.Subject)
	if err != nil {
		return domain.Principal{}, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid token subject")
	}
	role := domain.Role(c.Role)
	if !role.IsValid() {
		return domain.Principal{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token role")
	}

	p := domain.Principal{ID: userID, Role: role}
	if c.DepartmentID != "" {
		deptID, err := domain.ParseDepartmentID(c.DepartmentID)
		if err != nil {
			return domain.Principal{}, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid token department")
		}
		p.DepartmentID = &deptID
	}
	return p, nil
}
