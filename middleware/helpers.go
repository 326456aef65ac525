package middleware

import (
	"context"
	"errors"
)

type contextKey string

const claimsContextKey contextKey = "operator_claims"

func withClaims(ctx context.Context, claims *OperatorClaims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

func claimsFromContext(ctx context.Context) (*OperatorClaims, error) {
	claims, ok := ctx.Value(claimsContextKey).(*OperatorClaims)
	if !ok || claims == nil {
		return nil, errors.New("operator claims not found in context")
	}
	return claims, nil
}

func GetRoleFromContext(ctx context.Context) (string, error) {
	claims, err := claimsFromContext(ctx)
	if err != nil {
		return "", err
	}
	return claims.Role, nil
}

// GetOperatorFromContext returns the token subject, used for audit logging.
func GetOperatorFromContext(ctx context.Context) (string, error) {
	claims, err := claimsFromContext(ctx)
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}
