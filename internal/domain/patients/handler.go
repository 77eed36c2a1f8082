package patients

import (
	"context"

	"clinic-appointments/internal/domain/permissions"
	"clinic-appointments/internal/domain/resources"
	"clinic-appointments/internal/platform/logger"
	"clinic-appointments/internal/platform/validation"
	"clinic-appointments/internal/ports/documents"

	"github.com/go-chi/chi/v5"
)

// NewResource: alta del propio usuario como paciente y lectura con grant.
func NewResource(col documents.Collection, perms *permissions.Service) resources.Resource {
	return resources.Resource{
		Collection: col,
		Schema:     validation.MustSchema("patients", schemaJSON),
		Ops:        []resources.Op{resources.OpCreate, resources.OpDetail},
		Authorize: map[resources.Op]resources.Gate{
			resources.OpCreate: resources.Authenticated,
			resources.OpDetail: resources.Scoped(perms, col.Name(), permissions.PatientsView),
		},
		BeforeCreate: func(ctx context.Context, subject string, doc documents.Document) (documents.Document, error) {
			// la key es siempre el usuario; un segundo alta choca por key (409)
			doc[documents.FieldKey] = subject
			return doc, nil
		},
		AfterCreate: func(ctx context.Context, subject string, doc documents.Document) error {
			_, err := perms.Grant(ctx, subject, doc.ID(), permissions.PatientsView)
			return err
		},
	}
}

// RegisterRoutes godoc
// @Summary Registrarse como paciente
// @Description La key del documento es el id del usuario autenticado. Otorga patients:view sobre el propio registro.
// @Tags patients
// @Accept json
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param payload body object true "name, residential_area, phone"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {string} string "invalid json / schema"
// @Failure 401 {string} string "unauthorized"
// @Failure 409 {string} string "duplicate"
// @Router /patients [post]
func RegisterRoutes(r chi.Router, col documents.Collection, perms *permissions.Service, log logger.Logger) {
	resources.NewHandler(NewResource(col, perms), log).RegisterRoutes(r)
}
