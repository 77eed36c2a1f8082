package documents

import "context"

// Collection es el contrato mínimo que los handlers necesitan de un motor documental.
// Las implementaciones viven en adapters/storage/{memory,postgres,mongo}.
type Collection interface {
	Name() string

	All(ctx context.Context) ([]Document, error)
	Document(ctx context.Context, key string) (Document, error)
	FirstExample(ctx context.Context, example Document) (Document, error)
	ByExample(ctx context.Context, example Document) ([]Document, error)

	Save(ctx context.Context, doc Document) (Meta, error)

	// rev vacío = sin chequeo de revisión.
	Replace(ctx context.Context, key string, doc Document, rev string) (Meta, error)
	Update(ctx context.Context, key string, patch Document, rev string) (Meta, error)

	Remove(ctx context.Context, key string) error
}

// Store abre colecciones y asegura sus índices únicos.
type Store interface {
	Collection(ctx context.Context, spec CollectionSpec) (Collection, error)
	Close(ctx context.Context) error
}
