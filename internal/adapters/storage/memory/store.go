package memory

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"clinic-appointments/internal/ports/documents"
)

// Store guarda colecciones en memoria (modo dev y tests).
type Store struct {
	mu          sync.Mutex
	collections map[string]*collection
}

func NewStore() *Store {
	return &Store{
		collections: make(map[string]*collection),
	}
}

// Collection devuelve siempre la misma instancia por nombre; los índices
// declarados se acumulan.
func (s *Store) Collection(ctx context.Context, spec documents.CollectionSpec) (documents.Collection, error) {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return nil, fmt.Errorf("memory: collection name required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[name]
	if !ok {
		c = &collection{
			name:  name,
			edge:  spec.Edge,
			byKey: make(map[string]documents.Document),
		}
		s.collections[name] = c
	}
	c.mu.Lock()
	c.unique = append(c.unique, spec.Unique...)
	c.mu.Unlock()

	return c, nil
}

func (s *Store) Close(ctx context.Context) error { return nil }

type collection struct {
	name   string
	edge   bool
	unique []documents.Index

	mu    sync.RWMutex
	byKey map[string]documents.Document
}

func (c *collection) Name() string { return c.name }

func (c *collection) All(ctx context.Context) ([]documents.Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]documents.Document, 0, len(c.byKey))
	for _, d := range c.byKey {
		out = append(out, d.Clone())
	}
	sortByKey(out)
	return out, nil
}

func (c *collection) Document(ctx context.Context, key string) (documents.Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d, ok := c.byKey[key]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", c.name, key, documents.ErrNotFound)
	}
	return d.Clone(), nil
}

func (c *collection) FirstExample(ctx context.Context, example documents.Document) (documents.Document, error) {
	items, err := c.ByExample(ctx, example)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%s: no match for example: %w", c.name, documents.ErrNotFound)
	}
	return items[0], nil
}

func (c *collection) ByExample(ctx context.Context, example documents.Document) ([]documents.Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]documents.Document, 0)
	for _, d := range c.byKey {
		if d.Matches(example) {
			out = append(out, d.Clone())
		}
	}
	sortByKey(out)
	return out, nil
}

func (c *collection) Save(ctx context.Context, doc documents.Document) (documents.Meta, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := strings.TrimSpace(doc.Key())
	if key == "" {
		key = documents.NewKey()
	}
	if err := documents.CheckKey(c.name, key); err != nil {
		return documents.Meta{}, err
	}
	if _, exists := c.byKey[key]; exists {
		return documents.Meta{}, fmt.Errorf("%s: key %q: %w", c.name, key, documents.ErrDuplicate)
	}
	if err := c.checkEdge(doc); err != nil {
		return documents.Meta{}, err
	}

	stored := doc.WithoutSystemFields()
	if err := c.checkUnique(key, stored); err != nil {
		return documents.Meta{}, err
	}

	meta := documents.Meta{
		Key: key,
		ID:  documents.IDFor(c.name, key),
		Rev: documents.NewRevision(),
	}
	c.byKey[key] = stored.ApplyMeta(meta)
	return meta, nil
}

func (c *collection) Replace(ctx context.Context, key string, doc documents.Document, rev string) (documents.Meta, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur, err := c.current(key, rev)
	if err != nil {
		return documents.Meta{}, err
	}

	next := doc.WithoutSystemFields()
	if c.edge {
		// en un edge, _from/_to se conservan si el reemplazo no los trae
		for _, f := range []string{documents.FieldFrom, documents.FieldTo} {
			if _, ok := next[f]; !ok {
				next[f] = cur[f]
			}
		}
	}
	return c.write(key, next)
}

func (c *collection) Update(ctx context.Context, key string, patch documents.Document, rev string) (documents.Meta, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur, err := c.current(key, rev)
	if err != nil {
		return documents.Meta{}, err
	}

	next := documents.MergePatch(cur.WithoutSystemFields(), patch)
	return c.write(key, next)
}

func (c *collection) Remove(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.byKey[key]; !ok {
		return fmt.Errorf("%s/%s: %w", c.name, key, documents.ErrNotFound)
	}
	delete(c.byKey, key)
	return nil
}

// current exige c.mu tomado.
func (c *collection) current(key, rev string) (documents.Document, error) {
	cur, ok := c.byKey[key]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", c.name, key, documents.ErrNotFound)
	}
	if rev != "" && cur.Rev() != rev {
		return nil, fmt.Errorf("%s/%s: expected rev %s, found %s: %w", c.name, key, rev, cur.Rev(), documents.ErrConflict)
	}
	return cur, nil
}

// write exige c.mu tomado.
func (c *collection) write(key string, next documents.Document) (documents.Meta, error) {
	if err := c.checkEdge(next); err != nil {
		return documents.Meta{}, err
	}
	if err := c.checkUnique(key, next); err != nil {
		return documents.Meta{}, err
	}

	meta := documents.Meta{
		Key: key,
		ID:  documents.IDFor(c.name, key),
		Rev: documents.NewRevision(),
	}
	c.byKey[key] = next.ApplyMeta(meta)
	return meta, nil
}

func (c *collection) checkEdge(d documents.Document) error {
	if !c.edge {
		return nil
	}
	if d.String(documents.FieldFrom) == "" || d.String(documents.FieldTo) == "" {
		return fmt.Errorf("%s: edge documents require _from and _to", c.name)
	}
	return nil
}

// checkUnique ignora el propio documento (selfKey) para permitir reemplazos.
func (c *collection) checkUnique(selfKey string, d documents.Document) error {
	for _, idx := range c.unique {
		want, ok := documents.UniqueValues(d, idx)
		if !ok {
			continue
		}
		for k, other := range c.byKey {
			if k == selfKey {
				continue
			}
			got, ok := documents.UniqueValues(other, idx)
			if !ok {
				continue
			}
			if sameValues(want, got) {
				return fmt.Errorf("%s: index %s: %w", c.name, idx.Name, documents.ErrDuplicate)
			}
		}
	}
	return nil
}

// Los valores ya vienen normalizados por UniqueValues: "1" y 1 son distintos, como en postgres y mongo.
func sameValues(a, b []any) bool {
	return reflect.DeepEqual(a, b)
}

// Orden estable por key (solo para consistencia en dev).
func sortByKey(items []documents.Document) {
	sort.Slice(items, func(i, j int) bool {
		return items[i].Key() < items[j].Key()
	})
}
