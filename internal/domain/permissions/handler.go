package permissions

import (
	"net/http"
	"strings"
	"time"

	"clinic-appointments/internal/middleware"
	"clinic-appointments/internal/platform/logger"
	"clinic-appointments/internal/platform/respond"
	"clinic-appointments/internal/platform/validation"

	"github.com/go-chi/chi/v5"
)

func RegisterRoutes(r chi.Router, svc *Service, log logger.Logger) {
	// Admin: otorgar permisos (requiere permissions:grant global)
	r.Post("/permissions", grantHandler(svc, log))

	// Mis permisos
	r.Get("/me/permissions", listMyPermissionsHandler(svc, log))
}

type grantRequest struct {
	Subject  string `json:"subject" validate:"required"`
	Resource string `json:"resource"` // vacío o "*" => global
	Action   Action `json:"action" validate:"required"`
}

type grantResponse struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject"`
	Resource  string    `json:"resource"`
	Action    Action    `json:"action"`
	Global    bool      `json:"global"`
	CreatedAt time.Time `json:"created_at"`
}

// grantHandler godoc
// @Summary Otorgar un permiso
// @Description Crea el grant (subject, resource, action). Si ya existía, devuelve el existente. Requiere `permissions:grant` global.
// @Tags permissions
// @Accept json
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param payload body grantRequest true "Grant a crear"
// @Success 201 {object} grantResponse
// @Failure 400 {string} string "invalid json / acción desconocida"
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "forbidden"
// @Router /permissions [post]
func grantHandler(svc *Service, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		allowed, err := svc.HasPermission(r.Context(), claims.UserID, PermissionsGrant, "")
		if err != nil {
			log.Error("permission lookup failed", map[string]any{"err": err})
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if !allowed {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		var req grantRequest
		if err := respond.DecodeJSON(r, &req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if err := validation.ValidateStruct(req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		g, err := svc.Grant(r.Context(), req.Subject, req.Resource, req.Action)
		if err != nil {
			switch err {
			case ErrInvalidInput:
				http.Error(w, "unknown action or empty subject", http.StatusBadRequest)
			default:
				log.Error("grant failed", map[string]any{"err": err})
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}

		respond.JSON(w, http.StatusCreated, toGrantResponse(g))
	}
}

// listMyPermissionsHandler godoc
// @Summary Listar mis permisos
// @Tags permissions
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Success 200 {array} grantResponse
// @Failure 401 {string} string "unauthorized"
// @Router /me/permissions [get]
func listMyPermissionsHandler(svc *Service, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		items, err := svc.ListBySubject(r.Context(), claims.UserID)
		if err != nil {
			log.Error("list grants failed", map[string]any{"err": err})
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		out := make([]grantResponse, 0, len(items))
		for _, g := range items {
			out = append(out, toGrantResponse(g))
		}
		respond.JSON(w, http.StatusOK, out)
	}
}

func toGrantResponse(g Grant) grantResponse {
	return grantResponse{
		ID:        g.ID,
		Subject:   g.Subject,
		Resource:  g.Resource,
		Action:    g.Action,
		Global:    g.Global(),
		CreatedAt: g.CreatedAt,
	}
}
