package appointments

import (
	"net/http"
	"time"

	"clinic-appointments/internal/domain/permissions"
	"clinic-appointments/internal/domain/resources"
	"clinic-appointments/internal/platform/logger"
	"clinic-appointments/internal/platform/respond"
	"clinic-appointments/internal/platform/validation"
	"clinic-appointments/internal/ports/documents"

	"github.com/go-chi/chi/v5"
)

func RegisterRoutes(r chi.Router, col documents.Collection, perms *permissions.Service, patients PatientDirectory, log logger.Logger) {
	h := resources.NewHandler(NewResource(col, perms, patients), log)

	// CRUD + asignación de médico (requiere appointments:assign sobre el turno)
	h.RegisterRoutes(r, func(ar chi.Router) {
		ar.Put("/{key}/assign", assignHandler(col, resources.Scoped(perms, col.Name(), permissions.AppointmentsAssign), h.Logger()))
	})
}

type assignRequest struct {
	Doctor   string `json:"doctor" validate:"required"`
	Datetime string `json:"datetime" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	Rev      string `json:"_rev,omitempty"`
}

// assignHandler godoc
// @Summary Asignar médico y horario a un turno
// @Description Lee el turno, setea doctor y datetime, y lo reemplaza con la revisión leída (o la del If-Match). Un cambio concurrente devuelve 409.
// @Tags appointments
// @Accept json
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param If-Match header string false "Revisión esperada"
// @Param key path string true "Appointment key"
// @Param payload body assignRequest true "Médico y horario (RFC3339)"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {string} string "invalid json / validation"
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "forbidden"
// @Failure 404 {string} string "not found"
// @Failure 409 {string} string "conflict"
// @Router /appointments/{key}/assign [put]
func assignHandler(col documents.Collection, gate resources.Gate, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		if _, ok := resources.Authorize(w, r, log, gate, key); !ok {
			return
		}

		var req assignRequest
		if err := respond.DecodeJSON(r, &req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if err := validation.ValidateStruct(req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		at, err := time.Parse(time.RFC3339, req.Datetime)
		if err != nil {
			http.Error(w, "datetime must be RFC3339", http.StatusBadRequest)
			return
		}

		ctx := r.Context()
		cur, err := col.Document(ctx, key)
		if err != nil {
			resources.WriteError(w, log, err)
			return
		}

		rev := resources.Revision(r, documents.Document{documents.FieldRev: req.Rev})
		if rev == "" {
			rev = cur.Rev()
		}

		next := cur.WithoutSystemFields()
		next["doctor"] = req.Doctor
		next["datetime"] = at.UTC().Format(time.RFC3339)
		next["status"] = statusAssigned

		meta, err := col.Replace(ctx, key, next, rev)
		if err != nil {
			resources.WriteError(w, log, err)
			return
		}
		respond.JSON(w, http.StatusOK, next.ApplyMeta(meta))
	}
}
