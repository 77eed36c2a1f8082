package auth

// Claims es lo que el resto del servicio sabe del usuario autenticado.
// UserID es el subject de los grants (JWT "sub" o X-Debug-User-ID en dev).
type Claims struct {
	UserID   string
	Email    string
	TenantID string
}
