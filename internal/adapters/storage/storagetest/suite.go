// Package storagetest contiene la batería común que todo documents.Store debe pasar.
package storagetest

import (
	"context"
	"testing"

	"clinic-appointments/internal/ports/documents"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run ejecuta la batería sobre store. Cada subtest usa colecciones con nombre
// único para poder correr contra bases compartidas.
func Run(t *testing.T, store documents.Store) {
	t.Helper()

	t.Run("SaveAndGet", func(t *testing.T) { testSaveAndGet(t, store) })
	t.Run("UniqueIndex", func(t *testing.T) { testUniqueIndex(t, store) })
	t.Run("ReplaceRevision", func(t *testing.T) { testReplaceRevision(t, store) })
	t.Run("UpdateMerge", func(t *testing.T) { testUpdateMerge(t, store) })
	t.Run("Remove", func(t *testing.T) { testRemove(t, store) })
	t.Run("Edges", func(t *testing.T) { testEdges(t, store) })
	t.Run("InvalidKey", func(t *testing.T) { testInvalidKey(t, store) })
}

func testInvalidKey(t *testing.T, store documents.Store) {
	ctx := context.Background()
	col := open(t, store, documents.CollectionSpec{Name: collectionName("appointments")})

	for _, key := range []string{"a/b", "with space", "ñandú", "a?b"} {
		_, err := col.Save(ctx, documents.Document{"_key": key, "name": "x"})
		require.Error(t, err, key)
		assert.Equal(t, documents.KindInvalidKey, documents.KindOf(err), key)
	}

	items, err := col.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = col.Save(ctx, documents.Document{"_key": "users:42", "name": "x"})
	require.NoError(t, err)
}

func collectionName(prefix string) string {
	return prefix + "_" + uuid.NewString()[:8]
}

func open(t *testing.T, store documents.Store, spec documents.CollectionSpec) documents.Collection {
	t.Helper()
	col, err := store.Collection(context.Background(), spec)
	require.NoError(t, err)
	return col
}

func testSaveAndGet(t *testing.T, store documents.Store) {
	ctx := context.Background()
	col := open(t, store, documents.CollectionSpec{Name: collectionName("remedies")})

	meta, err := col.Save(ctx, documents.Document{"name": "Ginger", "dose": 2.0})
	require.NoError(t, err)
	require.NotEmpty(t, meta.Key)
	require.NotEmpty(t, meta.Rev)
	assert.Equal(t, documents.IDFor(col.Name(), meta.Key), meta.ID)

	got, err := col.Document(ctx, meta.Key)
	require.NoError(t, err)
	assert.Equal(t, "Ginger", got["name"])
	assert.EqualValues(t, 2, got["dose"])
	assert.Equal(t, meta.Key, got.Key())
	assert.Equal(t, meta.ID, got.ID())
	assert.Equal(t, meta.Rev, got.Rev())

	withKey, err := col.Save(ctx, documents.Document{"_key": "fixed", "name": "Honey"})
	require.NoError(t, err)
	assert.Equal(t, "fixed", withKey.Key)

	all, err := col.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = col.Document(ctx, "missing")
	assert.Equal(t, documents.KindNotFound, documents.KindOf(err))
}

func testUniqueIndex(t *testing.T, store documents.Store) {
	ctx := context.Background()
	col := open(t, store, documents.CollectionSpec{
		Name:   collectionName("remedies"),
		Unique: []documents.Index{{Name: "name_uniq", Fields: []string{"name"}}},
	})

	_, err := col.Save(ctx, documents.Document{"name": "Sage"})
	require.NoError(t, err)

	_, err = col.Save(ctx, documents.Document{"name": "Sage"})
	assert.Equal(t, documents.KindDuplicate, documents.KindOf(err))

	_, err = col.Save(ctx, documents.Document{"_key": "k1", "name": "Thyme"})
	require.NoError(t, err)
	_, err = col.Save(ctx, documents.Document{"_key": "k1", "name": "Basil"})
	assert.Equal(t, documents.KindDuplicate, documents.KindOf(err))

	// documentos sin el campo no chocan entre sí
	_, err = col.Save(ctx, documents.Document{"other": 1.0})
	require.NoError(t, err)
	_, err = col.Save(ctx, documents.Document{"other": 2.0})
	require.NoError(t, err)
}

func testReplaceRevision(t *testing.T, store documents.Store) {
	ctx := context.Background()
	col := open(t, store, documents.CollectionSpec{Name: collectionName("remedies")})

	meta, err := col.Save(ctx, documents.Document{"name": "Mint", "preparation": "boil"})
	require.NoError(t, err)

	next, err := col.Replace(ctx, meta.Key, documents.Document{"name": "Mint"}, meta.Rev)
	require.NoError(t, err)
	assert.NotEqual(t, meta.Rev, next.Rev)

	_, err = col.Replace(ctx, meta.Key, documents.Document{"name": "Stale"}, meta.Rev)
	assert.Equal(t, documents.KindConflict, documents.KindOf(err))

	got, err := col.Document(ctx, meta.Key)
	require.NoError(t, err)
	assert.Equal(t, "Mint", got["name"])
	assert.NotContains(t, got, "preparation")
	assert.Equal(t, next.Rev, got.Rev())

	_, err = col.Replace(ctx, "missing", documents.Document{"name": "x"}, "")
	assert.Equal(t, documents.KindNotFound, documents.KindOf(err))
}

func testUpdateMerge(t *testing.T, store documents.Store) {
	ctx := context.Background()
	col := open(t, store, documents.CollectionSpec{Name: collectionName("remedies")})

	meta, err := col.Save(ctx, documents.Document{
		"name":        "Chamomile",
		"description": "calming",
	})
	require.NoError(t, err)

	_, err = col.Update(ctx, meta.Key, documents.Document{"name": "X"}, "")
	require.NoError(t, err)

	got, err := col.Document(ctx, meta.Key)
	require.NoError(t, err)
	assert.Equal(t, "X", got["name"])
	assert.Equal(t, "calming", got["description"])

	_, err = col.Update(ctx, meta.Key, documents.Document{"name": "Y"}, meta.Rev)
	assert.Equal(t, documents.KindConflict, documents.KindOf(err))

	_, err = col.Update(ctx, "missing", documents.Document{"name": "Y"}, "")
	assert.Equal(t, documents.KindNotFound, documents.KindOf(err))
}

func testRemove(t *testing.T, store documents.Store) {
	ctx := context.Background()
	col := open(t, store, documents.CollectionSpec{Name: collectionName("remedies")})

	meta, err := col.Save(ctx, documents.Document{"name": "Aloe"})
	require.NoError(t, err)

	require.NoError(t, col.Remove(ctx, meta.Key))
	assert.Equal(t, documents.KindNotFound, documents.KindOf(col.Remove(ctx, meta.Key)))
}

func testEdges(t *testing.T, store documents.Store) {
	ctx := context.Background()
	col := open(t, store, documents.CollectionSpec{
		Name: collectionName("hasPerm"),
		Edge: true,
		Unique: []documents.Index{{
			Name:   "grant_uniq",
			Fields: []string{documents.FieldFrom, documents.FieldTo, "name"},
		}},
	})

	_, err := col.Save(ctx, documents.Document{"_from": "u1", "_to": "appointments/1", "name": "view"})
	require.NoError(t, err)
	_, err = col.Save(ctx, documents.Document{"_from": "u1", "_to": "appointments/1", "name": "edit"})
	require.NoError(t, err)

	_, err = col.Save(ctx, documents.Document{"_from": "u1", "_to": "appointments/1", "name": "view"})
	assert.Equal(t, documents.KindDuplicate, documents.KindOf(err))

	_, err = col.Save(ctx, documents.Document{"_from": "u1"})
	assert.Error(t, err)

	items, err := col.ByExample(ctx, documents.Document{"_from": "u1", "_to": "appointments/1"})
	require.NoError(t, err)
	assert.Len(t, items, 2)

	first, err := col.FirstExample(ctx, documents.Document{"name": "edit"})
	require.NoError(t, err)
	assert.Equal(t, "u1", first.String(documents.FieldFrom))

	_, err = col.FirstExample(ctx, documents.Document{"_from": "nobody"})
	assert.Equal(t, documents.KindNotFound, documents.KindOf(err))
}
