package permissions

import (
	"context"
	"fmt"
	"time"

	"clinic-appointments/internal/ports/documents"
)

type Repository interface {
	// Create devuelve un error documents.KindDuplicate si el triple ya existe.
	Create(ctx context.Context, g Grant) error
	// Find devuelve ErrNotFound si no hay grant para el triple.
	Find(ctx context.Context, subject, resource string, action Action) (Grant, error)
	ListBySubject(ctx context.Context, subject string) ([]Grant, error)
}

// CollectionSpec es la colección de aristas donde viven los grants.
var CollectionSpec = documents.CollectionSpec{
	Name: "hasPerm",
	Edge: true,
	Unique: []documents.Index{{
		Name:   "hasperm_triple",
		Fields: []string{documents.FieldFrom, documents.FieldTo, fieldAction},
	}},
}

const (
	fieldAction    = "name"
	fieldCreatedAt = "created_at"
)

// DocumentRepository guarda grants como aristas {_from: subject, _to: resource, name: action}.
type DocumentRepository struct {
	col documents.Collection
}

func NewDocumentRepository(col documents.Collection) *DocumentRepository {
	return &DocumentRepository{col: col}
}

func (r *DocumentRepository) Create(ctx context.Context, g Grant) error {
	_, err := r.col.Save(ctx, documents.Document{
		documents.FieldKey:  g.ID,
		documents.FieldFrom: g.Subject,
		documents.FieldTo:   g.Resource,
		fieldAction:         string(g.Action),
		fieldCreatedAt:      g.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	return err
}

func (r *DocumentRepository) Find(ctx context.Context, subject, resource string, action Action) (Grant, error) {
	d, err := r.col.FirstExample(ctx, documents.Document{
		documents.FieldFrom: subject,
		documents.FieldTo:   resource,
		fieldAction:         string(action),
	})
	if err != nil {
		if documents.KindOf(err) == documents.KindNotFound {
			return Grant{}, ErrNotFound
		}
		return Grant{}, err
	}
	return fromDocument(d)
}

func (r *DocumentRepository) ListBySubject(ctx context.Context, subject string) ([]Grant, error) {
	items, err := r.col.ByExample(ctx, documents.Document{documents.FieldFrom: subject})
	if err != nil {
		return nil, err
	}

	out := make([]Grant, 0, len(items))
	for _, d := range items {
		g, err := fromDocument(d)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

func fromDocument(d documents.Document) (Grant, error) {
	g := Grant{
		ID:       d.Key(),
		Subject:  d.String(documents.FieldFrom),
		Resource: d.String(documents.FieldTo),
		Action:   Action(d.String(fieldAction)),
	}
	if raw := d.String(fieldCreatedAt); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return Grant{}, fmt.Errorf("grant %s: created_at: %w", g.ID, err)
		}
		g.CreatedAt = t
	}
	return g, nil
}
