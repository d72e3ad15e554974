package jwttoken

import (
	"civicdesk/pkg/domain"
)

// JWTServiceAdapter satisfies authmw.PrincipalResolver.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ResolvePrincipal(tokenString string) (domain.Principal, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return domain.Principal{}, err
	}
	return claims.Principal()
}
