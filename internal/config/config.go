package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Drivers de almacenamiento soportados.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

type Config struct {
	App         App
	HTTP        HTTP
	Store       Store
	Auth        Auth
	Permissions Permissions
	Logger      Logger
}

type App struct {
	Name string
	Env  string
}

type HTTP struct {
	Addr               string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	ShutdownTimeout    time.Duration
	CORSAllowedOrigins []string
	RateLimitPerSecond int
}

type Store struct {
	Driver        string
	PostgresDSN   string
	MongoURI      string
	MongoDatabase string
}

type Auth struct {
	// vacío => modo dev (X-Debug-User-ID)
	JWTSecret string
}

type Permissions struct {
	Superusers    []string
	DefaultGlobal []string
}

type Logger struct {
	Level  string
	Format string
}

// Load lee .env (si existe) y luego el entorno.
func Load() Config {
	_ = godotenv.Load()

	addr := ":8080"
	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		addr = ":" + v
	}

	driver := strings.ToLower(GetEnvString("STORE_DRIVER", ""))
	dsn := GetEnvString("DB_DSN", "")
	if driver == "" {
		// compat: si hay DSN, Postgres; si no, in-memory
		driver = StoreMemory
		if dsn != "" {
			driver = StorePostgres
		}
	}

	return Config{
		App: App{
			Name: GetEnvString("APP_NAME", "clinic-appointments"),
			Env:  GetEnvString("APP_ENV", "development"),
		},
		HTTP: HTTP{
			Addr:               addr,
			ReadTimeout:        GetEnvDuration("HTTP_READ_TIMEOUT", 5*time.Second),
			WriteTimeout:       GetEnvDuration("HTTP_WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout:    GetEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
			CORSAllowedOrigins: GetEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			RateLimitPerSecond: GetEnvInt("RATE_LIMIT_PER_SECOND", 0),
		},
		Store: Store{
			Driver:        driver,
			PostgresDSN:   dsn,
			MongoURI:      GetEnvString("MONGO_URI", "mongodb://localhost:27017"),
			MongoDatabase: GetEnvString("MONGO_DATABASE", "clinic"),
		},
		Auth: Auth{
			JWTSecret: GetEnvString("AUTH_JWT_SECRET", ""),
		},
		Permissions: Permissions{
			Superusers:    GetEnvList("PERMISSIONS_SUPERUSERS", nil),
			DefaultGlobal: GetEnvList("PERMISSIONS_DEFAULT_GLOBAL", DefaultGlobalActions),
		},
		Logger: Logger{
			Level:  GetEnvString("LOG_LEVEL", "info"),
			Format: GetEnvString("LOG_FORMAT", "json"),
		},
	}
}

// DefaultGlobalActions: lo que cualquier usuario autenticado puede hacer a nivel colección.
// Los permisos sobre documentos concretos siempre salen de grants.
var DefaultGlobalActions = []string{
	"appointments:view",
	"appointments:create",
	"homeremedies:create",
	"homeremedies:edit",
	"homeremedies:delete",
}

func GetEnvString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func GetEnvInt(key string, fallback int) int {
	v := GetEnvString(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// GetEnvDuration acepta "5s" o segundos enteros ("5").
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	v := GetEnvString(key, "")
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

// GetEnvList parsea CSV; "" => fallback, "-" => lista vacía.
func GetEnvList(key string, fallback []string) []string {
	v := GetEnvString(key, "")
	if v == "" {
		return fallback
	}
	if v == "-" {
		return []string{}
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
