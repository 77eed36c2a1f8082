package permissions

import (
	"context"
	"errors"
	"strings"
	"time"

	"clinic-appointments/internal/ports/documents"

	"github.com/google/uuid"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
)

type Options struct {
	// Superusers tienen todos los permisos (bootstrap / admins).
	Superusers []string
	// DefaultGlobal: acciones globales que tiene cualquier usuario autenticado.
	DefaultGlobal []string
}

type Service struct {
	repo          Repository
	superusers    map[string]struct{}
	defaultGlobal map[Action]struct{}
	now           func() time.Time
}

func NewService(repo Repository, opts Options) *Service {
	s := &Service{
		repo:          repo,
		superusers:    map[string]struct{}{},
		defaultGlobal: map[Action]struct{}{},
		now:           time.Now,
	}
	for _, u := range opts.Superusers {
		if u = strings.TrimSpace(u); u != "" {
			s.superusers[u] = struct{}{}
		}
	}
	for _, a := range opts.DefaultGlobal {
		if a = strings.TrimSpace(a); a != "" {
			s.defaultGlobal[Action(a)] = struct{}{}
		}
	}
	return s
}

// HasPermission responde si subject puede hacer action.
// resource == "" => grant global; si no, grant sobre exactamente ese recurso.
func (s *Service) HasPermission(ctx context.Context, subject string, action Action, resource string) (bool, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" || action == "" {
		return false, nil
	}
	if _, ok := s.superusers[subject]; ok {
		return true, nil
	}

	resource = strings.TrimSpace(resource)
	if resource == "" {
		if _, ok := s.defaultGlobal[action]; ok {
			return true, nil
		}
		resource = GlobalResource
	}

	_, err := s.repo.Find(ctx, subject, resource, action)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Grant crea la arista. Si ya existía, devuelve la existente (idempotente).
func (s *Service) Grant(ctx context.Context, subject, resource string, action Action) (Grant, error) {
	subject = strings.TrimSpace(subject)
	resource = strings.TrimSpace(resource)
	if resource == "" {
		resource = GlobalResource
	}
	if subject == "" || !Known(action) {
		return Grant{}, ErrInvalidInput
	}

	g := Grant{
		ID:        uuid.NewString(),
		Subject:   subject,
		Resource:  resource,
		Action:    action,
		CreatedAt: s.now(),
	}

	err := s.repo.Create(ctx, g)
	if err == nil {
		return g, nil
	}
	if documents.KindOf(err) != documents.KindDuplicate {
		return Grant{}, err
	}
	return s.repo.Find(ctx, subject, resource, action)
}

// GrantAll otorga varias acciones sobre el mismo recurso; corta en el primer error.
func (s *Service) GrantAll(ctx context.Context, subject, resource string, actions ...Action) error {
	for _, a := range actions {
		if _, err := s.Grant(ctx, subject, resource, a); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) ListBySubject(ctx context.Context, subject string) ([]Grant, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, ErrInvalidInput
	}
	return s.repo.ListBySubject(ctx, subject)
}
