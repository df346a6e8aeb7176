package jwttoken

import (
	id "flock/pkg/domain"
	authmw "flock/pkg/platform/middleware/auth"
)

func ToMiddlewareClaims(claims *Claims) *authmw.JWTClaims {
	userID, _ := claims.UserID()
	return &authmw.JWTClaims{
		UserID:   userID,
		ChurchID: id.ChurchID(claims.ChurchID),
		Role:     claims.Role,
	}
}

// JWTServiceAdapter satisfies authmw.JWTValidator for the HTTP middleware and
// the WebSocket handshake.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*authmw.JWTClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return ToMiddlewareClaims(claims), nil
}
