package resources

import (
	"context"
	"strings"

	"clinic-appointments/internal/domain/permissions"
	"clinic-appointments/internal/platform/validation"
	"clinic-appointments/internal/ports/documents"
)

// Op es cada una de las operaciones CRUD que expone un recurso.
type Op string

const (
	OpList    Op = "list"
	OpCreate  Op = "create"
	OpDetail  Op = "detail"
	OpReplace Op = "replace"
	OpPatch   Op = "patch"
	OpDelete  Op = "delete"
)

// Gate decide si subject puede operar; key vacío en list/create.
// Un gate nil es una ruta abierta.
type Gate func(ctx context.Context, subject, key string) (bool, error)

// PermissionChecker es lo único que los gates necesitan del módulo de permisos.
type PermissionChecker interface {
	HasPermission(ctx context.Context, subject string, action permissions.Action, resource string) (bool, error)
}

// Authenticated solo exige claims.
func Authenticated(ctx context.Context, subject, key string) (bool, error) { return true, nil }

// Global exige un grant a nivel colección.
func Global(pc PermissionChecker, action permissions.Action) Gate {
	return func(ctx context.Context, subject, _ string) (bool, error) {
		return pc.HasPermission(ctx, subject, action, "")
	}
}

// Scoped exige un grant sobre "<collection>/<key>".
func Scoped(pc PermissionChecker, collection string, action permissions.Action) Gate {
	return func(ctx context.Context, subject, key string) (bool, error) {
		return pc.HasPermission(ctx, subject, action, documents.IDFor(collection, key))
	}
}

type Resource struct {
	// Path es el segmento de URL; vacío => nombre de la colección.
	Path       string
	Collection documents.Collection

	// Schema valida create y replace. ReplaceSchema lo reemplaza en PUT si viene.
	Schema        *validation.Schema
	ReplaceSchema *validation.Schema

	// Edge: create exige _from y _to.
	Edge bool

	// Ops limita las rutas montadas; nil => las seis.
	Ops       []Op
	Authorize map[Op]Gate

	// BeforeCreate puede completar o rechazar el documento antes de guardarlo.
	BeforeCreate func(ctx context.Context, subject string, doc documents.Document) (documents.Document, error)
	// AfterCreate corre con el documento ya guardado (con _key/_id/_rev).
	AfterCreate func(ctx context.Context, subject string, doc documents.Document) error

	// BeforeWrite recibe el documento guardado y el propuesto (PUT o PATCH ya mergeado)
	// y devuelve lo que se escribe. Con guard, la escritura usa la revisión leída.
	BeforeWrite func(ctx context.Context, subject string, cur, next documents.Document) (documents.Document, error)
}

func (r Resource) path() string {
	p := strings.Trim(strings.TrimSpace(r.Path), "/")
	if p == "" {
		p = r.Collection.Name()
	}
	return p
}

func (r Resource) serves(op Op) bool {
	if r.Ops == nil {
		return true
	}
	for _, o := range r.Ops {
		if o == op {
			return true
		}
	}
	return false
}

func (r Resource) gate(op Op) Gate {
	if r.Authorize == nil {
		return nil
	}
	return r.Authorize[op]
}

func (r Resource) replaceSchema() *validation.Schema {
	if r.ReplaceSchema != nil {
		return r.ReplaceSchema
	}
	return r.Schema
}
