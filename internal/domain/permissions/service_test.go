package permissions

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"clinic-appointments/internal/adapters/storage/memory"
	"clinic-appointments/internal/ports/documents"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -------------------------
// Test repo (in-memory)
// -------------------------

type testRepo struct {
	byTriple map[string]Grant
	failWith error
}

func newTestRepo() *testRepo {
	return &testRepo{byTriple: map[string]Grant{}}
}

func triple(subject, resource string, action Action) string {
	return subject + "|" + resource + "|" + string(action)
}

func (r *testRepo) Create(ctx context.Context, g Grant) error {
	if r.failWith != nil {
		return r.failWith
	}
	k := triple(g.Subject, g.Resource, g.Action)
	if _, ok := r.byTriple[k]; ok {
		return fmt.Errorf("repo: %w", documents.ErrDuplicate)
	}
	r.byTriple[k] = g
	return nil
}

func (r *testRepo) Find(ctx context.Context, subject, resource string, action Action) (Grant, error) {
	if r.failWith != nil {
		return Grant{}, r.failWith
	}
	g, ok := r.byTriple[triple(subject, resource, action)]
	if !ok {
		return Grant{}, ErrNotFound
	}
	return g, nil
}

func (r *testRepo) ListBySubject(ctx context.Context, subject string) ([]Grant, error) {
	out := make([]Grant, 0)
	for _, g := range r.byTriple {
		if g.Subject == subject {
			out = append(out, g)
		}
	}
	return out, nil
}

// -------------------------
// Tests
// -------------------------

func TestService_HasPermission_ResourceScopedOnlyMatchesThatResource(t *testing.T) {
	svc := NewService(newTestRepo(), Options{})
	ctx := context.Background()

	require.NoError(t, svc.GrantAll(ctx, "u1", "appointments/1", AppointmentsView, AppointmentsEdit, AppointmentsDelete))

	for _, a := range []Action{AppointmentsView, AppointmentsEdit, AppointmentsDelete} {
		ok, err := svc.HasPermission(ctx, "u1", a, "appointments/1")
		require.NoError(t, err)
		assert.True(t, ok, "expected %s on appointments/1", a)
	}

	// otro recurso, otra acción, otro sujeto, global: nada
	ok, _ := svc.HasPermission(ctx, "u1", AppointmentsView, "appointments/2")
	assert.False(t, ok)
	ok, _ = svc.HasPermission(ctx, "u1", AppointmentsAssign, "appointments/1")
	assert.False(t, ok)
	ok, _ = svc.HasPermission(ctx, "u2", AppointmentsView, "appointments/1")
	assert.False(t, ok)
	ok, _ = svc.HasPermission(ctx, "u1", AppointmentsView, "")
	assert.False(t, ok)
}

func TestService_HasPermission_GlobalGrantAndDefaults(t *testing.T) {
	svc := NewService(newTestRepo(), Options{
		DefaultGlobal: []string{string(AppointmentsCreate)},
	})
	ctx := context.Background()

	ok, err := svc.HasPermission(ctx, "anyone", AppointmentsCreate, "")
	require.NoError(t, err)
	assert.True(t, ok)

	// el default global no alcanza recursos concretos
	ok, _ = svc.HasPermission(ctx, "anyone", AppointmentsCreate, "appointments/1")
	assert.False(t, ok)

	_, err = svc.Grant(ctx, "u1", "", AppointmentsView)
	require.NoError(t, err)

	ok, _ = svc.HasPermission(ctx, "u1", AppointmentsView, "")
	assert.True(t, ok)

	// anónimo nunca
	ok, _ = svc.HasPermission(ctx, "", AppointmentsCreate, "")
	assert.False(t, ok)
}

func TestService_HasPermission_Superuser(t *testing.T) {
	svc := NewService(newTestRepo(), Options{Superusers: []string{"admin"}})

	ok, err := svc.HasPermission(context.Background(), "admin", AppointmentsAssign, "appointments/99")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestService_HasPermission_PropagatesRepoErrors(t *testing.T) {
	repo := newTestRepo()
	repo.failWith = errors.New("db down")
	svc := NewService(repo, Options{})

	ok, err := svc.HasPermission(context.Background(), "u1", AppointmentsView, "appointments/1")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestService_Grant_IdempotentAndValidated(t *testing.T) {
	svc := NewService(newTestRepo(), Options{})
	ctx := context.Background()

	now := time.Date(2025, 12, 22, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	g1, err := svc.Grant(ctx, "u1", "appointments/1", AppointmentsView)
	require.NoError(t, err)
	assert.Equal(t, now, g1.CreatedAt)
	assert.False(t, g1.Global())

	g2, err := svc.Grant(ctx, "u1", "appointments/1", AppointmentsView)
	require.NoError(t, err)
	assert.Equal(t, g1.ID, g2.ID)

	_, err = svc.Grant(ctx, "u1", "appointments/1", Action("bad:action"))
	assert.Equal(t, ErrInvalidInput, err)

	_, err = svc.Grant(ctx, " ", "appointments/1", AppointmentsView)
	assert.Equal(t, ErrInvalidInput, err)
}

func TestDocumentRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	col, err := memory.NewStore().Collection(ctx, CollectionSpec)
	require.NoError(t, err)

	svc := NewService(NewDocumentRepository(col), Options{})

	g, err := svc.Grant(ctx, "u1", "appointments/1", AppointmentsEdit)
	require.NoError(t, err)

	// idempotente también contra el índice único del store
	again, err := svc.Grant(ctx, "u1", "appointments/1", AppointmentsEdit)
	require.NoError(t, err)
	assert.Equal(t, g.ID, again.ID)

	_, err = svc.Grant(ctx, "u1", "", PermissionsGrant)
	require.NoError(t, err)

	items, err := svc.ListBySubject(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, items, 2)

	ok, err := svc.HasPermission(ctx, "u1", PermissionsGrant, "")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.HasPermission(ctx, "u1", AppointmentsEdit, "appointments/2")
	require.NoError(t, err)
	assert.False(t, ok)
}
