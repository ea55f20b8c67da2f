package app

import "time"

// Драйверы хранилища.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
	StorageDriverMongo    = "mongo"
)

// Реализации блокировки оформления.
const (
	LockDriverLocal = "local"
	LockDriverRedis = "redis"
)

// Реализации объектного хранилища чеков.
const (
	ObjectStoreLocal = "local"
	ObjectStoreMinIO = "minio"
)

// Транспорты почты.
const (
	MailerLog  = "log"
	MailerSMTP = "smtp"
)

// Config описывает настройки запуска магазина. Все поля сравнимы, чтобы
// конфигурацию можно было сравнивать с DefaultConfig() целиком.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string
	ServiceName string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool
	// PostgresMaxConns ограничивает пул; 0 оставляет значение пакета postgres.
	PostgresMaxConns int
	MongoURI         string
	MongoDatabase    string

	LockDriver      string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	CheckoutLockTTL time.Duration

	ObjectStoreDriver  string
	FilesRoot          string
	FilesBaseURL       string
	MinIOEndpoint      string
	MinIOAccessKey     string
	MinIOSecretKey     string
	MinIOBucket        string
	MinIOUseSSL        bool
	MinIOPublicBaseURL string
	MinIOPresignExpiry time.Duration

	MailerDriver string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	JWTSecret      string
	SessionTTL     time.Duration
	RememberTTL    time.Duration
	CookieSecure   bool
	AllowedOrigins string
	AdminEmail     string
	AdminPassword  string

	CheckoutStepTimeout time.Duration
	AsyncNotification   bool

	KafkaBrokers  string
	KafkaClientID string
	KafkaTopic    string
	KafkaDLQTopic string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	OutboxMaxPending   int

	RecoveryInterval    time.Duration
	RecoveryGracePeriod time.Duration
	RecoveryBatchSize   int
	RecoveryMaxAttempts int

	IdempotencyKeyTTL           time.Duration
	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	TelemetryExporter string
	OTLPEndpoint      string
	TraceSampleRatio  float64

	ShutdownTimeout time.Duration
}

// DefaultConfig возвращает конфигурацию для локального запуска без внешних сервисов.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:    ":8080",
		GRPCAddr:    ":50051",
		MetricsAddr: ":9090",
		ServiceName: "vegshop",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		MongoDatabase:       "vegshop",

		LockDriver:      LockDriverLocal,
		CheckoutLockTTL: 2 * time.Minute,

		ObjectStoreDriver:  ObjectStoreLocal,
		FilesRoot:          "./data/files",
		FilesBaseURL:       "http://localhost:8080/files",
		MinIOBucket:        "receipts",
		MinIOPresignExpiry: 7 * 24 * time.Hour,

		MailerDriver: MailerLog,
		SMTPPort:     587,
		SMTPFrom:     "orders@vegshop.local",

		SessionTTL:  2 * time.Hour,
		RememberTTL: 30 * 24 * time.Hour,

		CheckoutStepTimeout: 10 * time.Second,

		KafkaClientID: "vegshop",
		KafkaTopic:    "vegshop.orders",
		KafkaDLQTopic: "vegshop.orders.dlq",

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   50 * time.Millisecond,
		OutboxMaxPending:   1000,

		RecoveryInterval:    30 * time.Second,
		RecoveryGracePeriod: 2 * time.Minute,
		RecoveryBatchSize:   50,
		RecoveryMaxAttempts: 10,

		IdempotencyKeyTTL:           24 * time.Hour,
		IdempotencyCleanupInterval:  10 * time.Minute,
		IdempotencyCleanupBatchSize: 500,

		TelemetryExporter: "none",
		TraceSampleRatio:  1,

		ShutdownTimeout: 10 * time.Second,
	}
}
