package router

import (
	"context"
	"fmt"
	"net/http"
	"time"

	_ "clinic-appointments/docs"
	mem "clinic-appointments/internal/adapters/storage/memory"
	"clinic-appointments/internal/domain/appointments"
	"clinic-appointments/internal/domain/homeremedies"
	"clinic-appointments/internal/domain/isappointed"
	"clinic-appointments/internal/domain/patients"
	"clinic-appointments/internal/domain/permissions"
	"clinic-appointments/internal/middleware"
	"clinic-appointments/internal/platform/logger"
	"clinic-appointments/internal/ports/auth"
	"clinic-appointments/internal/ports/documents"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	httpSwagger "github.com/swaggo/http-swagger"
)

type Options struct {
	AuthVerifier auth.AuthVerifier // puede ser nil (modo dev)

	// Opcional: si no viene, in-memory.
	Store documents.Store

	Logger      logger.Logger
	Permissions permissions.Options

	CORSAllowedOrigins []string
	// 0 => sin rate limit
	RateLimitPerSecond int
}

func NewRouter(opts Options) (http.Handler, error) {
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	store := opts.Store
	if store == nil {
		store = mem.NewStore()
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLog(log))
	r.Use(middleware.Recover(log))

	origins := opts.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "If-Match", "X-Debug-User-ID"},
		ExposedHeaders: []string{"Location"},
		MaxAge:         300,
	}))
	if opts.RateLimitPerSecond > 0 {
		r.Use(httprate.LimitByIP(opts.RateLimitPerSecond, time.Second))
	}

	r.Use(middleware.AuthContext(opts.AuthVerifier, log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	// Colecciones (crea índices únicos si hace falta)
	ctx := context.Background()
	cols := map[string]documents.Collection{}
	for _, spec := range []documents.CollectionSpec{
		permissions.CollectionSpec,
		patients.CollectionSpec,
		appointments.CollectionSpec,
		homeremedies.CollectionSpec,
		isappointed.CollectionSpec,
	} {
		col, err := store.Collection(ctx, spec)
		if err != nil {
			return nil, fmt.Errorf("open collection %s: %w", spec.Name, err)
		}
		cols[spec.Name] = col
	}

	// Services por módulo
	permsSvc := permissions.NewService(
		permissions.NewDocumentRepository(cols[permissions.CollectionSpec.Name]),
		opts.Permissions,
	)
	patientsDir := patients.NewDirectory(cols[patients.CollectionSpec.Name])

	// Rutas por módulo
	permissions.RegisterRoutes(r, permsSvc, log)
	patients.RegisterRoutes(r, cols[patients.CollectionSpec.Name], permsSvc, log)
	appointments.RegisterRoutes(r, cols[appointments.CollectionSpec.Name], permsSvc, patientsDir, log)
	homeremedies.RegisterRoutes(r, cols[homeremedies.CollectionSpec.Name], permsSvc, log)
	isappointed.RegisterRoutes(r, cols[isappointed.CollectionSpec.Name], permsSvc, log)

	return r, nil
}
