// Package config собирает app.Config из переменных окружения, YAML файла и .env.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vladislavdragonenkov/vegshop/internal/app"
)

const envPrefix = "VEGSHOP_"

const (
	EnvConfigFile  = "VEGSHOP_CONFIG_FILE"
	EnvLogLevel    = "VEGSHOP_LOG_LEVEL"
	EnvLogFormat   = "VEGSHOP_LOG_FORMAT"
	envHTTPAddr    = "VEGSHOP_HTTP_ADDR"
	envGRPCAddr    = "VEGSHOP_GRPC_ADDR"
	envMetricsAddr = "VEGSHOP_METRICS_ADDR"
	envServiceName = "VEGSHOP_SERVICE_NAME"

	envStorageDriver       = "VEGSHOP_STORAGE_DRIVER"
	envPostgresDSN         = "VEGSHOP_POSTGRES_DSN"
	envPostgresAutoMigrate = "VEGSHOP_POSTGRES_AUTO_MIGRATE"
	envPostgresMaxConns    = "VEGSHOP_POSTGRES_MAX_CONNS"
	envMongoURI            = "VEGSHOP_MONGO_URI"
	envMongoDatabase       = "VEGSHOP_MONGO_DATABASE"

	envLockDriver      = "VEGSHOP_LOCK_DRIVER"
	envRedisAddr       = "VEGSHOP_REDIS_ADDR"
	envRedisPassword   = "VEGSHOP_REDIS_PASSWORD"
	envRedisDB         = "VEGSHOP_REDIS_DB"
	envCheckoutLockTTL = "VEGSHOP_CHECKOUT_LOCK_TTL"

	envObjectStore        = "VEGSHOP_OBJECT_STORE"
	envFilesRoot          = "VEGSHOP_FILES_ROOT"
	envFilesBaseURL       = "VEGSHOP_FILES_BASE_URL"
	envMinIOEndpoint      = "VEGSHOP_MINIO_ENDPOINT"
	envMinIOAccessKey     = "VEGSHOP_MINIO_ACCESS_KEY"
	envMinIOSecretKey     = "VEGSHOP_MINIO_SECRET_KEY"
	envMinIOBucket        = "VEGSHOP_MINIO_BUCKET"
	envMinIOUseSSL        = "VEGSHOP_MINIO_USE_SSL"
	envMinIOPublicBaseURL = "VEGSHOP_MINIO_PUBLIC_BASE_URL"
	envMinIOPresignExpiry = "VEGSHOP_MINIO_PRESIGN_EXPIRY"

	envMailer       = "VEGSHOP_MAILER"
	envSMTPHost     = "VEGSHOP_SMTP_HOST"
	envSMTPPort     = "VEGSHOP_SMTP_PORT"
	envSMTPUsername = "VEGSHOP_SMTP_USERNAME"
	envSMTPPassword = "VEGSHOP_SMTP_PASSWORD"
	envSMTPFrom     = "VEGSHOP_SMTP_FROM"

	envJWTSecret      = "VEGSHOP_JWT_SECRET"
	envSessionTTL     = "VEGSHOP_SESSION_TTL"
	envRememberTTL    = "VEGSHOP_REMEMBER_TTL"
	envCookieSecure   = "VEGSHOP_COOKIE_SECURE"
	envAllowedOrigins = "VEGSHOP_ALLOWED_ORIGINS"
	envAdminEmail     = "VEGSHOP_ADMIN_EMAIL"
	envAdminPassword  = "VEGSHOP_ADMIN_PASSWORD"

	envCheckoutStepTimeout = "VEGSHOP_CHECKOUT_STEP_TIMEOUT"
	envAsyncNotification   = "VEGSHOP_ASYNC_NOTIFICATION"

	envKafkaBrokers  = "VEGSHOP_KAFKA_BROKERS"
	envKafkaClientID = "VEGSHOP_KAFKA_CLIENT_ID"
	envKafkaTopic    = "VEGSHOP_KAFKA_TOPIC"
	envKafkaDLQTopic = "VEGSHOP_KAFKA_DLQ_TOPIC"

	envOutboxPollInterval = "VEGSHOP_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize    = "VEGSHOP_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts  = "VEGSHOP_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay   = "VEGSHOP_OUTBOX_RETRY_DELAY"
	envOutboxMaxPending   = "VEGSHOP_OUTBOX_MAX_PENDING"

	envRecoveryInterval    = "VEGSHOP_RECOVERY_INTERVAL"
	envRecoveryGracePeriod = "VEGSHOP_RECOVERY_GRACE_PERIOD"
	envRecoveryBatchSize   = "VEGSHOP_RECOVERY_BATCH_SIZE"
	envRecoveryMaxAttempts = "VEGSHOP_RECOVERY_MAX_ATTEMPTS"

	envIdempotencyKeyTTL           = "VEGSHOP_IDEMPOTENCY_KEY_TTL"
	envIdempotencyCleanupInterval  = "VEGSHOP_IDEMPOTENCY_CLEANUP_INTERVAL"
	envIdempotencyCleanupBatchSize = "VEGSHOP_IDEMPOTENCY_CLEANUP_BATCH_SIZE"

	envTelemetryExporter = "VEGSHOP_TELEMETRY_EXPORTER"
	envOTLPEndpoint      = "VEGSHOP_OTLP_ENDPOINT"
	envTraceSampleRatio  = "VEGSHOP_TRACE_SAMPLE_RATIO"

	envShutdownTimeout = "VEGSHOP_SHUTDOWN_TIMEOUT"
)

// Lookup возвращает значение переменной и признак её наличия, как os.LookupEnv.
type Lookup func(key string) (string, bool)

// Chain ищет значение по очереди; первое найденное побеждает.
func Chain(lookups ...Lookup) Lookup {
	return func(key string) (string, bool) {
		for _, lookup := range lookups {
			if lookup == nil {
				continue
			}
			if value, ok := lookup(key); ok {
				return value, true
			}
		}
		return "", false
	}
}

// LoadFile читает YAML с плоскими ключами вида storage_driver: postgres.
// Ключ превращается в имя переменной окружения VEGSHOP_STORAGE_DRIVER.
func LoadFile(path string) (Lookup, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	values := make(map[string]string, len(doc))
	for key, value := range doc {
		switch v := value.(type) {
		case nil:
			continue
		case map[string]any, []any:
			return nil, fmt.Errorf("config file %s: key %q must be a scalar", path, key)
		default:
			values[envPrefix+strings.ToUpper(strings.TrimSpace(key))] = fmt.Sprint(v)
		}
	}

	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}, nil
}

// envReader накапливает предупреждения о некорректных значениях, оставляя значения по умолчанию.
type envReader struct {
	lookup   Lookup
	warnings []string
}

func (r *envReader) get(key string) (string, bool) {
	raw, ok := r.lookup(key)
	if !ok {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}

func (r *envReader) warn(key, raw string, err error) {
	r.warnings = append(r.warnings, fmt.Sprintf("%s=%q ignored: %v", key, raw, err))
}

func (r *envReader) str(key string, dst *string) {
	if raw, ok := r.get(key); ok {
		*dst = raw
	}
}

func (r *envReader) lower(key string, dst *string) {
	if raw, ok := r.get(key); ok {
		*dst = strings.ToLower(raw)
	}
}

func (r *envReader) boolean(key string, dst *bool) {
	raw, ok := r.get(key)
	if !ok {
		return
	}
	value, err := parseBool(raw)
	if err != nil {
		r.warn(key, raw, err)
		return
	}
	*dst = value
}

func (r *envReader) integer(key string, dst *int, valid func(int) bool, rule string) {
	raw, ok := r.get(key)
	if !ok {
		return
	}
	value, err := parseInt(raw, valid, rule)
	if err != nil {
		r.warn(key, raw, err)
		return
	}
	*dst = value
}

func (r *envReader) duration(key string, dst *time.Duration, valid func(time.Duration) bool, rule string) {
	raw, ok := r.get(key)
	if !ok {
		return
	}
	value, err := parseDuration(raw, valid, rule)
	if err != nil {
		r.warn(key, raw, err)
		return
	}
	*dst = value
}

func (r *envReader) ratio(key string, dst *float64) {
	raw, ok := r.get(key)
	if !ok {
		return
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err == nil && (value <= 0 || value > 1) {
		err = errors.New("must be in (0, 1]")
	}
	if err != nil {
		r.warn(key, raw, err)
		return
	}
	*dst = value
}

func positiveInt(v int) bool { return v > 0 }

func nonNegativeInt(v int) bool { return v >= 0 }

func positiveDuration(v time.Duration) bool { return v > 0 }

func nonNegativeDuration(v time.Duration) bool { return v >= 0 }

// FromEnv строит конфигурацию поверх DefaultConfig. Некорректные значения
// не прерывают запуск: поле остаётся по умолчанию, а причина попадает в warnings.
func FromEnv(lookup Lookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	r := &envReader{lookup: lookup}

	r.str(envHTTPAddr, &cfg.HTTPAddr)
	r.str(envGRPCAddr, &cfg.GRPCAddr)
	r.str(envMetricsAddr, &cfg.MetricsAddr)
	r.str(envServiceName, &cfg.ServiceName)

	r.lower(envStorageDriver, &cfg.StorageDriver)
	r.str(envPostgresDSN, &cfg.PostgresDSN)
	r.boolean(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)
	r.integer(envPostgresMaxConns, &cfg.PostgresMaxConns, nonNegativeInt, "must be >= 0")
	r.str(envMongoURI, &cfg.MongoURI)
	r.str(envMongoDatabase, &cfg.MongoDatabase)

	r.lower(envLockDriver, &cfg.LockDriver)
	r.str(envRedisAddr, &cfg.RedisAddr)
	r.str(envRedisPassword, &cfg.RedisPassword)
	r.integer(envRedisDB, &cfg.RedisDB, nonNegativeInt, "must be >= 0")
	r.duration(envCheckoutLockTTL, &cfg.CheckoutLockTTL, positiveDuration, "must be > 0")

	r.lower(envObjectStore, &cfg.ObjectStoreDriver)
	r.str(envFilesRoot, &cfg.FilesRoot)
	r.str(envFilesBaseURL, &cfg.FilesBaseURL)
	r.str(envMinIOEndpoint, &cfg.MinIOEndpoint)
	r.str(envMinIOAccessKey, &cfg.MinIOAccessKey)
	r.str(envMinIOSecretKey, &cfg.MinIOSecretKey)
	r.str(envMinIOBucket, &cfg.MinIOBucket)
	r.boolean(envMinIOUseSSL, &cfg.MinIOUseSSL)
	r.str(envMinIOPublicBaseURL, &cfg.MinIOPublicBaseURL)
	r.duration(envMinIOPresignExpiry, &cfg.MinIOPresignExpiry, positiveDuration, "must be > 0")

	r.lower(envMailer, &cfg.MailerDriver)
	r.str(envSMTPHost, &cfg.SMTPHost)
	r.integer(envSMTPPort, &cfg.SMTPPort, func(v int) bool { return v > 0 && v < 65536 }, "must be a tcp port")
	r.str(envSMTPUsername, &cfg.SMTPUsername)
	r.str(envSMTPPassword, &cfg.SMTPPassword)
	r.str(envSMTPFrom, &cfg.SMTPFrom)

	r.str(envJWTSecret, &cfg.JWTSecret)
	r.duration(envSessionTTL, &cfg.SessionTTL, positiveDuration, "must be > 0")
	r.duration(envRememberTTL, &cfg.RememberTTL, positiveDuration, "must be > 0")
	r.boolean(envCookieSecure, &cfg.CookieSecure)
	r.str(envAllowedOrigins, &cfg.AllowedOrigins)
	r.str(envAdminEmail, &cfg.AdminEmail)
	r.str(envAdminPassword, &cfg.AdminPassword)

	r.duration(envCheckoutStepTimeout, &cfg.CheckoutStepTimeout, positiveDuration, "must be > 0")
	r.boolean(envAsyncNotification, &cfg.AsyncNotification)

	r.str(envKafkaBrokers, &cfg.KafkaBrokers)
	r.str(envKafkaClientID, &cfg.KafkaClientID)
	r.str(envKafkaTopic, &cfg.KafkaTopic)
	r.str(envKafkaDLQTopic, &cfg.KafkaDLQTopic)

	r.duration(envOutboxPollInterval, &cfg.OutboxPollInterval, positiveDuration, "must be > 0")
	r.integer(envOutboxBatchSize, &cfg.OutboxBatchSize, positiveInt, "must be > 0")
	r.integer(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts, positiveInt, "must be > 0")
	r.duration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegativeDuration, "must be >= 0")
	r.integer(envOutboxMaxPending, &cfg.OutboxMaxPending, nonNegativeInt, "must be >= 0")

	r.duration(envRecoveryInterval, &cfg.RecoveryInterval, positiveDuration, "must be > 0")
	r.duration(envRecoveryGracePeriod, &cfg.RecoveryGracePeriod, nonNegativeDuration, "must be >= 0")
	r.integer(envRecoveryBatchSize, &cfg.RecoveryBatchSize, positiveInt, "must be > 0")
	r.integer(envRecoveryMaxAttempts, &cfg.RecoveryMaxAttempts, nonNegativeInt, "must be >= 0")

	r.duration(envIdempotencyKeyTTL, &cfg.IdempotencyKeyTTL, positiveDuration, "must be > 0")
	r.duration(envIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, positiveDuration, "must be > 0")
	r.integer(envIdempotencyCleanupBatchSize, &cfg.IdempotencyCleanupBatchSize, positiveInt, "must be > 0")

	r.lower(envTelemetryExporter, &cfg.TelemetryExporter)
	r.str(envOTLPEndpoint, &cfg.OTLPEndpoint)
	r.ratio(envTraceSampleRatio, &cfg.TraceSampleRatio)

	r.duration(envShutdownTimeout, &cfg.ShutdownTimeout, positiveDuration, "must be > 0")

	return cfg, r.warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid int value %q", raw)
	}
	if valid != nil && !valid(value) {
		return 0, errors.New(rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration value %q", raw)
	}
	if valid != nil && !valid(value) {
		return 0, errors.New(rule)
	}
	return value, nil
}
