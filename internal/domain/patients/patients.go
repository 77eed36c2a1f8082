package patients

import (
	"context"
	_ "embed"
	"strings"

	"clinic-appointments/internal/ports/documents"
)

//go:embed schema.json
var schemaJSON string

// Un paciente se guarda con _key = id del usuario autenticado.
var CollectionSpec = documents.CollectionSpec{Name: "patients"}

// Directory responde "¿este usuario es paciente?".
type Directory struct {
	col documents.Collection
}

func NewDirectory(col documents.Collection) *Directory {
	return &Directory{col: col}
}

// Lookup devuelve el documento del paciente o documents.ErrNotFound.
func (d *Directory) Lookup(ctx context.Context, subject string) (documents.Document, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, documents.ErrNotFound
	}
	return d.col.Document(ctx, subject)
}
