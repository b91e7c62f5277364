package jwttoken

import (
	"platbook/internal/platform/middleware"
)

// ServiceAdapter bridges Service to the middleware's ReviewerValidator
// interface without the middleware importing jwt types.
type ServiceAdapter struct {
	service *Service
}

func NewServiceAdapter(service *Service) *ServiceAdapter {
	return &ServiceAdapter{service: service}
}

func (a *ServiceAdapter) ValidateToken(tokenString string) (*middleware.ReviewerClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &middleware.ReviewerClaims{
		Subject: claims.Subject,
		Role:    claims.Role,
	}, nil
}
