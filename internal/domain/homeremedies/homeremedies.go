package homeremedies

import (
	_ "embed"

	"clinic-appointments/internal/domain/permissions"
	"clinic-appointments/internal/domain/resources"
	"clinic-appointments/internal/platform/logger"
	"clinic-appointments/internal/platform/validation"
	"clinic-appointments/internal/ports/documents"

	"github.com/go-chi/chi/v5"
)

//go:embed schema.json
var schemaJSON string

// El nombre identifica al remedio: dos con el mismo nombre => 409.
var CollectionSpec = documents.CollectionSpec{
	Name:   "homeremedies",
	Unique: []documents.Index{{Name: "homeremedies_name", Fields: []string{"name"}}},
}

// NewResource: lectura abierta, escritura con grant global.
func NewResource(col documents.Collection, perms resources.PermissionChecker) resources.Resource {
	return resources.Resource{
		Collection: col,
		Schema:     validation.MustSchema("homeremedies", schemaJSON),
		Authorize: map[resources.Op]resources.Gate{
			resources.OpCreate:  resources.Global(perms, permissions.HomeRemediesCreate),
			resources.OpReplace: resources.Global(perms, permissions.HomeRemediesEdit),
			resources.OpPatch:   resources.Global(perms, permissions.HomeRemediesEdit),
			resources.OpDelete:  resources.Global(perms, permissions.HomeRemediesDelete),
		},
	}
}

func RegisterRoutes(r chi.Router, col documents.Collection, perms resources.PermissionChecker, log logger.Logger) {
	resources.NewHandler(NewResource(col, perms), log).RegisterRoutes(r)
}
