package appointments

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"clinic-appointments/internal/adapters/storage/memory"
	"clinic-appointments/internal/domain/permissions"
	"clinic-appointments/internal/domain/resources"
	"clinic-appointments/internal/ports/documents"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDirectory struct {
	patients map[string]documents.Document
	err      error
}

func (f fakeDirectory) Lookup(ctx context.Context, subject string) (documents.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.patients[subject]
	if !ok {
		return nil, documents.ErrNotFound
	}
	return p, nil
}

func newTestResource(t *testing.T, dir PatientDirectory) (resources.Resource, *permissions.Service) {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	grants, err := store.Collection(ctx, permissions.CollectionSpec)
	require.NoError(t, err)
	col, err := store.Collection(ctx, CollectionSpec)
	require.NoError(t, err)

	perms := permissions.NewService(permissions.NewDocumentRepository(grants), permissions.Options{})
	return NewResource(col, perms, dir), perms
}

func TestBeforeCreate_DerivesFieldsFromPatient(t *testing.T) {
	res, _ := newTestResource(t, fakeDirectory{patients: map[string]documents.Document{
		"u1": {"_key": "u1", "_id": "patients/u1", "residential_area": "north"},
	}})

	doc, err := res.BeforeCreate(context.Background(), "u1", documents.Document{
		"description": "x",
		"patient":     "someone-else",
	})
	require.NoError(t, err)
	assert.Equal(t, "patients/u1", doc["patient"])
	assert.Equal(t, "north", doc["area"])
	assert.Equal(t, "requested", doc["status"])
}

func TestBeforeCreate_NotAPatient(t *testing.T) {
	res, _ := newTestResource(t, fakeDirectory{})

	_, err := res.BeforeCreate(context.Background(), "u1", documents.Document{"description": "x"})
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resources.StatusOf(err))
	assert.Equal(t, "Not a patient!", err.Error())
}

func TestBeforeCreate_DirectoryFailureIsUnexpected(t *testing.T) {
	res, _ := newTestResource(t, fakeDirectory{err: errors.New("db down")})

	_, err := res.BeforeCreate(context.Background(), "u1", documents.Document{"description": "x"})
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, resources.StatusOf(err))
}

func TestAfterCreate_GrantsOnlyThatAppointment(t *testing.T) {
	res, perms := newTestResource(t, fakeDirectory{})
	ctx := context.Background()

	require.NoError(t, res.AfterCreate(ctx, "u1", documents.Document{"_key": "a1", "_id": "appointments/a1"}))

	for _, a := range creatorActions {
		ok, err := perms.HasPermission(ctx, "u1", a, "appointments/a1")
		require.NoError(t, err)
		assert.True(t, ok, a)

		ok, err = perms.HasPermission(ctx, "u1", a, "appointments/a2")
		require.NoError(t, err)
		assert.False(t, ok, a)
	}

	ok, err := perms.HasPermission(ctx, "u1", permissions.AppointmentsAssign, "appointments/a1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGuardWrite_KeepsDerivedFields(t *testing.T) {
	cur := documents.Document{
		"_key": "a1", "_rev": "_r1",
		"patient": "patients/u1", "area": "north", "status": "requested", "description": "x",
	}

	next, err := guardWrite(context.Background(), "u1", cur, documents.Document{
		"description": "y",
		"patient":     "patients/bob",
		"area":        "south",
	})
	require.NoError(t, err)
	assert.Equal(t, "patients/u1", next["patient"])
	assert.Equal(t, "north", next["area"])
	assert.Equal(t, "y", next["description"])
}

func TestGuardWrite_AssignFieldsOnlyThroughAssign(t *testing.T) {
	cur := documents.Document{
		"patient": "patients/u1", "status": "assigned",
		"doctor": "doctors/7", "datetime": "2026-03-01T10:30:00Z",
	}
	ctx := context.Background()

	// ausentes => se conservan; iguales => ok
	next, err := guardWrite(ctx, "u1", cur, documents.Document{"description": "z", "doctor": "doctors/7"})
	require.NoError(t, err)
	assert.Equal(t, "doctors/7", next["doctor"])
	assert.Equal(t, "2026-03-01T10:30:00Z", next["datetime"])

	_, err = guardWrite(ctx, "u1", cur, documents.Document{"doctor": "me"})
	assert.Equal(t, http.StatusForbidden, resources.StatusOf(err))

	_, err = guardWrite(ctx, "u1", cur, documents.Document{"datetime": "2030-01-01T00:00:00Z"})
	assert.Equal(t, http.StatusForbidden, resources.StatusOf(err))

	requested := documents.Document{"patient": "patients/u1", "status": "requested"}
	_, err = guardWrite(ctx, "u1", requested, documents.Document{"status": "assigned"})
	assert.Equal(t, http.StatusForbidden, resources.StatusOf(err))

	next, err = guardWrite(ctx, "u1", requested, documents.Document{"status": "cancelled"})
	require.NoError(t, err)
	assert.Equal(t, "cancelled", next["status"])
}
