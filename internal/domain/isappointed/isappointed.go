package isappointed

import (
	_ "embed"

	"clinic-appointments/internal/domain/permissions"
	"clinic-appointments/internal/domain/resources"
	"clinic-appointments/internal/platform/logger"
	"clinic-appointments/internal/platform/validation"
	"clinic-appointments/internal/ports/documents"

	"github.com/go-chi/chi/v5"
)

var (
	//go:embed schema.json
	schemaJSON string
	//go:embed replace_schema.json
	replaceSchemaJSON string
)

// Path es el segmento de URL; la colección se llama isAssigned.
const Path = "isappointed"

// Aristas doctor/paciente -> turno. Un par (_from, _to) aparece una sola vez.
var CollectionSpec = documents.CollectionSpec{
	Name: "isAssigned",
	Edge: true,
	Unique: []documents.Index{{
		Name:   "isappointed_pair",
		Fields: []string{documents.FieldFrom, documents.FieldTo},
	}},
}

// NewResource: todos los gates son globales sobre las acciones de appointments.
func NewResource(col documents.Collection, perms resources.PermissionChecker) resources.Resource {
	return resources.Resource{
		Path:          Path,
		Collection:    col,
		Edge:          true,
		Schema:        validation.MustSchema("isappointed", schemaJSON),
		ReplaceSchema: validation.MustSchema("isappointed_replace", replaceSchemaJSON),
		Authorize: map[resources.Op]resources.Gate{
			resources.OpList:    resources.Global(perms, permissions.AppointmentsView),
			resources.OpCreate:  resources.Global(perms, permissions.AppointmentsCreate),
			resources.OpDetail:  resources.Global(perms, permissions.AppointmentsView),
			resources.OpReplace: resources.Global(perms, permissions.AppointmentsEdit),
			resources.OpPatch:   resources.Global(perms, permissions.AppointmentsEdit),
			resources.OpDelete:  resources.Global(perms, permissions.AppointmentsDelete),
		},
	}
}

func RegisterRoutes(r chi.Router, col documents.Collection, perms resources.PermissionChecker, log logger.Logger) {
	resources.NewHandler(NewResource(col, perms), log).RegisterRoutes(r)
}
