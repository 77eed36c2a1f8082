package auth

import "context"

// AuthVerifier valida un bearer token. nil en el router => modo dev.
type AuthVerifier interface {
	Verify(ctx context.Context, token string) (Claims, error)
}
