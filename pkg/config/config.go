package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Políticas ante stock negativo en ventas.
const (
	NegativeStockAdvisory = "advisory"
	NegativeStockBlock    = "block"
)

// Config agrupa la configuración de la aplicación (lectura vía Viper desde env y opcionalmente archivo).
type Config struct {
	App    AppConfig
	DB     DBConfig
	JWT    JWTConfig
	HTTP   HTTPConfig
	Redis  RedisConfig
	Import ImportConfig
}

// AppConfig configuración general de la aplicación.
type AppConfig struct {
	Env            string // development, staging, production
	Name           string
	LogLevel       string
	Storage        string // postgres | memory
	OrganizationID string // organización por defecto del CLI
}

// DBConfig configuración de PostgreSQL.
// Si DatabaseURL no está vacío, se usa como connection string completo.
type DBConfig struct {
	DatabaseURL string
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	MaxConns    int
	Migrate     bool // aplicar migraciones al iniciar
}

// ConnectionString devuelve el DSN a usar: DATABASE_URL si está definido, si no el construido con DSN().
func (c DBConfig) ConnectionString() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return c.DSN()
}

// DSN devuelve el connection string con URL encoding para caracteres especiales.
func (c DBConfig) DSN() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: fmt.Sprintf("sslmode=%s", c.SSLMode),
	}
	return u.String()
}

// JWTConfig configuración de JWT.
type JWTConfig struct {
	Secret     string
	Expiration int // minutos
	Issuer     string
}

// HTTPConfig configuración del servidor HTTP.
type HTTPConfig struct {
	Host string
	Port int
}

// Addr devuelve la dirección de escucha (host:port).
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RedisConfig bloqueo distribuido de lotes y canal de notificaciones. Addr vacío = en proceso.
type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	NotifyChannel string
}

// Enabled indica si hay Redis configurado.
func (c RedisConfig) Enabled() bool { return c.Addr != "" }

// ImportConfig parámetros del pipeline de importación.
type ImportConfig struct {
	TotalTolerance      string
	PriceDivergencePct  string
	NegativeStockPolicy string // advisory | block
	RulesFile           string // YAML opcional con sobrescrituras de reglas
	BatchWorkers        int
	MaxFileMB           int
	LockTTLSeconds      int
	StaleMinutes        int // inactividad tras la cual Cancel finaliza una PROCESSING; 0 desactiva
}

// MaxFileBytes tamaño máximo de archivo en bytes.
func (c ImportConfig) MaxFileBytes() int64 { return int64(c.MaxFileMB) << 20 }

// LockTTL duración de los locks de lote.
func (c ImportConfig) LockTTL() time.Duration { return time.Duration(c.LockTTLSeconds) * time.Second }

// StaleAfter inactividad que vuelve abandonada una importación en curso.
func (c ImportConfig) StaleAfter() time.Duration { return time.Duration(c.StaleMinutes) * time.Minute }

// BlockOnNegativeStock indica si el stock negativo es bloqueante.
func (c ImportConfig) BlockOnNegativeStock() bool { return c.NegativeStockPolicy == NegativeStockBlock }

// Load lee la configuración desde variables de entorno (y opcionalmente desde archivo).
// Las env vars tienen prioridad. Nombres esperados: APP_ENV, DB_HOST, REDIS_ADDR, IMPORT_BATCH_WORKERS, etc.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // opcional

	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	_ = v.ReadInConfig() // opcional

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		App: AppConfig{
			Env:            getString(v, "APP_ENV", "development"),
			Name:           getString(v, "APP_NAME", "nfe-conciliacao"),
			LogLevel:       getString(v, "LOG_LEVEL", "info"),
			Storage:        getString(v, "APP_STORAGE", "postgres"),
			OrganizationID: getString(v, "ORGANIZATION_ID", ""),
		},
		DB: DBConfig{
			DatabaseURL: getString(v, "DATABASE_URL", ""),
			Host:        getString(v, "DB_HOST", "localhost"),
			Port:        getInt(v, "DB_PORT", 5432),
			User:        getString(v, "DB_USER", "postgres"),
			Password:    getString(v, "DB_PASSWORD", ""),
			DBName:      getString(v, "DB_NAME", "nfe_conciliacao"),
			SSLMode:     getString(v, "DB_SSLMODE", "disable"),
			MaxConns:    getInt(v, "DB_MAX_CONNS", 25),
			Migrate:     getBool(v, "DB_MIGRATE", true),
		},
		JWT: JWTConfig{
			Secret:     getString(v, "JWT_SECRET", ""),
			Expiration: getInt(v, "JWT_EXPIRATION_MINUTES", 60),
			Issuer:     getString(v, "JWT_ISSUER", "nfe-conciliacao"),
		},
		HTTP: HTTPConfig{
			Host: getString(v, "HTTP_HOST", "0.0.0.0"),
			Port: getInt(v, "HTTP_PORT", 8080),
		},
		Redis: RedisConfig{
			Addr:          getString(v, "REDIS_ADDR", ""),
			Password:      getString(v, "REDIS_PASSWORD", ""),
			DB:            getInt(v, "REDIS_DB", 0),
			NotifyChannel: getString(v, "NOTIFY_CHANNEL", "nfe:inconsistencias"),
		},
		Import: ImportConfig{
			TotalTolerance:      getString(v, "IMPORT_TOTAL_TOLERANCE", "0.01"),
			PriceDivergencePct:  getString(v, "IMPORT_PRICE_DIVERGENCE_PCT", "10"),
			NegativeStockPolicy: getString(v, "IMPORT_NEGATIVE_STOCK_POLICY", NegativeStockAdvisory),
			RulesFile:           getString(v, "IMPORT_RULES_FILE", ""),
			BatchWorkers:        getInt(v, "IMPORT_BATCH_WORKERS", 4),
			MaxFileMB:           getInt(v, "IMPORT_MAX_FILE_MB", 10),
			LockTTLSeconds:      getInt(v, "IMPORT_LOCK_TTL_SECONDS", 30),
			StaleMinutes:        getInt(v, "IMPORT_STALE_MINUTES", 15),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Import.NegativeStockPolicy {
	case NegativeStockAdvisory, NegativeStockBlock:
	default:
		return fmt.Errorf("config: IMPORT_NEGATIVE_STOCK_POLICY inválido %q", c.Import.NegativeStockPolicy)
	}
	switch c.App.Storage {
	case "postgres", "memory":
	default:
		return fmt.Errorf("config: APP_STORAGE inválido %q", c.App.Storage)
	}
	if c.Import.BatchWorkers <= 0 {
		return fmt.Errorf("config: IMPORT_BATCH_WORKERS debe ser positivo")
	}
	if c.Import.MaxFileMB <= 0 {
		return fmt.Errorf("config: IMPORT_MAX_FILE_MB debe ser positivo")
	}
	if c.Import.StaleMinutes < 0 {
		return fmt.Errorf("config: IMPORT_STALE_MINUTES no puede ser negativo")
	}
	return nil
}

func getString(v *viper.Viper, key, def string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return def
}

func getInt(v *viper.Viper, key string, def int) int {
	if v.IsSet(key) {
		switch v.Get(key).(type) {
		case int:
			return v.GetInt(key)
		case string:
			n, err := strconv.Atoi(v.GetString(key))
			if err != nil {
				return def
			}
			return n
		default:
			return v.GetInt(key)
		}
	}
	return def
}

func getBool(v *viper.Viper, key string, def bool) bool {
	if v.IsSet(key) {
		return v.GetBool(key)
	}
	return def
}
