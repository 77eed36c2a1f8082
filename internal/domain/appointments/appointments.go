package appointments

import (
	"context"
	_ "embed"
	"fmt"
	"reflect"

	"clinic-appointments/internal/domain/permissions"
	"clinic-appointments/internal/domain/resources"
	"clinic-appointments/internal/platform/validation"
	"clinic-appointments/internal/ports/documents"
)

//go:embed schema.json
var schemaJSON string

var CollectionSpec = documents.CollectionSpec{Name: "appointments"}

// PatientDirectory resuelve el paciente que corresponde a un usuario.
type PatientDirectory interface {
	Lookup(ctx context.Context, subject string) (documents.Document, error)
}

const (
	statusRequested = "requested"
	statusAssigned  = "assigned"
)

var (
	// derivados del paciente en el alta; PUT/PATCH nunca los cambian
	derivedFields = []string{"patient", "area"}
	// solo los escribe /assign
	assignFields = []string{"doctor", "datetime"}
)

// Acciones que recibe quien crea un turno sobre ese turno.
var creatorActions = []permissions.Action{
	permissions.AppointmentsView,
	permissions.AppointmentsEdit,
	permissions.AppointmentsDelete,
}

func NewResource(col documents.Collection, perms *permissions.Service, patients PatientDirectory) resources.Resource {
	name := col.Name()
	return resources.Resource{
		Collection: col,
		Schema:     validation.MustSchema("appointments", schemaJSON),
		Authorize: map[resources.Op]resources.Gate{
			resources.OpList:    resources.Global(perms, permissions.AppointmentsView),
			resources.OpCreate:  resources.Global(perms, permissions.AppointmentsCreate),
			resources.OpDetail:  resources.Scoped(perms, name, permissions.AppointmentsView),
			resources.OpReplace: resources.Scoped(perms, name, permissions.AppointmentsEdit),
			resources.OpPatch:   resources.Scoped(perms, name, permissions.AppointmentsEdit),
			resources.OpDelete:  resources.Scoped(perms, name, permissions.AppointmentsDelete),
		},
		BeforeCreate: func(ctx context.Context, subject string, doc documents.Document) (documents.Document, error) {
			p, err := patients.Lookup(ctx, subject)
			if err != nil {
				if documents.KindOf(err) == documents.KindNotFound {
					return nil, resources.Forbidden("Not a patient!")
				}
				return nil, fmt.Errorf("lookup patient %s: %w", subject, err)
			}

			doc["patient"] = p.ID()
			if area, ok := p["residential_area"]; ok {
				doc["area"] = area
			}
			if _, ok := doc["status"]; !ok {
				doc["status"] = statusRequested
			}
			return doc, nil
		},
		AfterCreate: func(ctx context.Context, subject string, doc documents.Document) error {
			return perms.GrantAll(ctx, subject, doc.ID(), creatorActions...)
		},
		BeforeWrite: guardWrite,
	}
}

// guardWrite limita lo que appointments:edit puede cambiar.
func guardWrite(ctx context.Context, subject string, cur, next documents.Document) (documents.Document, error) {
	for _, f := range derivedFields {
		if v, ok := cur[f]; ok {
			next[f] = v
		} else {
			delete(next, f)
		}
	}

	for _, f := range assignFields {
		v, ok := next[f]
		if !ok {
			if prev, had := cur[f]; had {
				next[f] = prev
			}
			continue
		}
		if !reflect.DeepEqual(v, cur[f]) {
			return nil, resources.Forbidden(f + " can only be changed through /assign")
		}
	}

	if next.String("status") == statusAssigned && cur.String("status") != statusAssigned {
		return nil, resources.Forbidden("status assigned can only be set through /assign")
	}
	return next, nil
}
