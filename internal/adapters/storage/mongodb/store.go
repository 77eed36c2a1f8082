package mongodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"clinic-appointments/internal/ports/documents"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// En Mongo la key vive en _id y la revisión en _rev.
const (
	mongoID  = "_id"
	mongoRev = "_rev"
)

// Store mapea cada colección documental a una colección de Mongo.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

func NewStore(client *mongo.Client, database string) *Store {
	return &Store{
		client: client,
		db:     client.Database(database),
	}
}

func (s *Store) Collection(ctx context.Context, spec documents.CollectionSpec) (documents.Collection, error) {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return nil, errors.New("mongodb: collection name required")
	}

	coll := s.db.Collection(name)
	for _, idx := range spec.Unique {
		if err := ensureUniqueIndex(ctx, coll, idx); err != nil {
			return nil, fmt.Errorf("mongodb: index %s on %s: %w", idx.Name, name, err)
		}
	}

	return &collection{
		name: name,
		edge: spec.Edge,
		coll: coll,
	}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Índice parcial: documentos sin los campos no participan (igual que en memory/postgres).
func ensureUniqueIndex(ctx context.Context, coll *mongo.Collection, idx documents.Index) error {
	if len(idx.Fields) == 0 {
		return errors.New("index without fields")
	}

	keys := bson.D{}
	partial := bson.M{}
	for _, f := range idx.Fields {
		keys = append(keys, bson.E{Key: f, Value: 1})
		partial[f] = bson.M{"$exists": true}
	}

	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: keys,
		Options: options.Index().
			SetName(idx.Name).
			SetUnique(true).
			SetPartialFilterExpression(partial),
	})
	return err
}

type collection struct {
	name string
	edge bool
	coll *mongo.Collection
}

func (c *collection) Name() string { return c.name }

func (c *collection) All(ctx context.Context) ([]documents.Document, error) {
	return c.find(ctx, bson.M{})
}

func (c *collection) Document(ctx context.Context, key string) (documents.Document, error) {
	raw, err := c.coll.FindOne(ctx, bson.M{mongoID: key}).Raw()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%s/%s: %w", c.name, key, documents.ErrNotFound)
		}
		return nil, err
	}
	return c.decode(raw)
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
	filter := bson.M{}
	for k, v := range example.WithoutSystemFields() {
		filter[k] = v
	}
	if key := example.Key(); key != "" {
		filter[mongoID] = key
	}
	return c.find(ctx, filter)
}

func (c *collection) Save(ctx context.Context, doc documents.Document) (documents.Meta, error) {
	key := strings.TrimSpace(doc.Key())
	if key == "" {
		key = documents.NewKey()
	}
	if err := documents.CheckKey(c.name, key); err != nil {
		return documents.Meta{}, err
	}

	stored := doc.WithoutSystemFields()
	if err := c.checkEdge(stored); err != nil {
		return documents.Meta{}, err
	}

	meta := documents.Meta{
		Key: key,
		ID:  documents.IDFor(c.name, key),
		Rev: documents.NewRevision(),
	}
	if _, err := c.coll.InsertOne(ctx, toRecord(stored, meta)); err != nil {
		return documents.Meta{}, c.mapError(key, err)
	}
	return meta, nil
}

func (c *collection) Replace(ctx context.Context, key string, doc documents.Document, rev string) (documents.Meta, error) {
	return c.rewrite(ctx, key, rev, func(cur documents.Document) documents.Document {
		next := doc.WithoutSystemFields()
		if c.edge {
			for _, f := range []string{documents.FieldFrom, documents.FieldTo} {
				if _, ok := next[f]; !ok {
					next[f] = cur[f]
				}
			}
		}
		return next
	})
}

func (c *collection) Update(ctx context.Context, key string, patch documents.Document, rev string) (documents.Meta, error) {
	return c.rewrite(ctx, key, rev, func(cur documents.Document) documents.Document {
		return documents.MergePatch(cur.WithoutSystemFields(), patch)
	})
}

// rewrite lee, construye y reemplaza condicionado a la revisión leída.
// Si otro writer se adelantó, ReplaceOne no matchea y se reporta conflicto.
func (c *collection) rewrite(ctx context.Context, key, rev string, build func(cur documents.Document) documents.Document) (documents.Meta, error) {
	cur, err := c.Document(ctx, key)
	if err != nil {
		return documents.Meta{}, err
	}
	if rev != "" && cur.Rev() != rev {
		return documents.Meta{}, fmt.Errorf("%s/%s: expected rev %s, found %s: %w", c.name, key, rev, cur.Rev(), documents.ErrConflict)
	}

	next := build(cur)
	if err := c.checkEdge(next); err != nil {
		return documents.Meta{}, err
	}

	meta := documents.Meta{
		Key: key,
		ID:  documents.IDFor(c.name, key),
		Rev: documents.NewRevision(),
	}

	res, err := c.coll.ReplaceOne(ctx, bson.M{mongoID: key, mongoRev: cur.Rev()}, toRecord(next, meta))
	if err != nil {
		return documents.Meta{}, c.mapError(key, err)
	}
	if res.MatchedCount == 0 {
		if _, err := c.Document(ctx, key); err != nil {
			return documents.Meta{}, err
		}
		return documents.Meta{}, fmt.Errorf("%s/%s: concurrent write: %w", c.name, key, documents.ErrConflict)
	}
	return meta, nil
}

func (c *collection) Remove(ctx context.Context, key string) error {
	res, err := c.coll.DeleteOne(ctx, bson.M{mongoID: key})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%s/%s: %w", c.name, key, documents.ErrNotFound)
	}
	return nil
}

func (c *collection) find(ctx context.Context, filter bson.M) ([]documents.Document, error) {
	cur, err := c.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: mongoID, Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make([]documents.Document, 0)
	for cur.Next(ctx) {
		d, err := c.decode(cur.Current)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, cur.Err()
}

// decode pasa por Extended JSON relajado para obtener mapas planos
// (sin primitive.D anidados) que se serializan igual que el resto de adapters.
func (c *collection) decode(raw bson.Raw) (documents.Document, error) {
	ext, err := bson.MarshalExtJSON(raw, false, false)
	if err != nil {
		return nil, fmt.Errorf("mongodb: decode %s: %w", c.name, err)
	}

	d := documents.Document{}
	if err := json.Unmarshal(ext, &d); err != nil {
		return nil, fmt.Errorf("mongodb: decode %s: %w", c.name, err)
	}

	key := d.String(mongoID)
	rev := d.String(mongoRev)
	delete(d, mongoID)
	delete(d, mongoRev)

	return d.ApplyMeta(documents.Meta{
		Key: key,
		ID:  documents.IDFor(c.name, key),
		Rev: rev,
	}), nil
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

func (c *collection) mapError(key string, err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%s/%s: %v: %w", c.name, key, err, documents.ErrDuplicate)
	}
	return err
}

func toRecord(body documents.Document, meta documents.Meta) bson.M {
	rec := bson.M{}
	for k, v := range body {
		rec[k] = v
	}
	rec[mongoID] = meta.Key
	rec[mongoRev] = meta.Rev
	return rec
}
