package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config captures runtime configuration for the API service.
type Config struct {
	HTTP       HTTPConfig
	Database   DatabaseConfig
	Kafka      KafkaConfig
	Redis      RedisConfig
	Telemetry  TelemetryConfig
	Service    ServiceConfig
	Payment    PaymentConfig
	POS        POSConfig
	Delivery   DeliveryConfig
	Checkout   CheckoutConfig
	Commission CommissionConfig
	Branches   BranchesConfig
}

type HTTPConfig struct {
	Port            int
	ShutdownGrace   time.Duration
	RequestTimeout  time.Duration
	DeepLinkSchemes []string
}

type DatabaseConfig struct {
	URL            string
	AutoMigrate    bool
	MigrationsPath string
}

type KafkaConfig struct {
	Brokers        []string
	MirrorTopic    string
	CancelledTopic string
	StatusTopic    string
}

// Enabled reports whether at least one broker is configured.
func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type TelemetryConfig struct {
	LogLevel      string
	OTelEndpoint  string
	EnableTracing bool
	EnableMetrics bool
	SampleRate    float64
}

type ServiceConfig struct {
	Name        string
	Version     string
	Environment string
}

type PaymentConfig struct {
	MoyasarSecretKey     string
	MoyasarWebhookSecret string
	MoyasarBaseURL       string
	StripeSecretKey      string
	StripeWebhookSecret  string
	StripeBaseURL        string
	RedirectEndpoint     string
	MinChargeMinor       int64
	Timeout              time.Duration
}

type POSConfig struct {
	BaseURL      string
	AccessToken  string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

type DeliveryConfig struct {
	BaseURL            string
	RefreshToken       string
	PickupLocationCode string
	WebhookSecret      string
	Timeout            time.Duration
}

// CheckoutConfig covers the duplicate-checkout claim and the best-effort
// side-effect workers.
type CheckoutConfig struct {
	ClaimBackend      string
	ClaimTTL          time.Duration
	SideEffectWorkers int
	SideEffectQueue   int
	SideEffectTimeout time.Duration
}

type CommissionConfig struct {
	Rate decimal.Decimal
}

type BranchesConfig struct {
	Path string
}

const (
	ClaimBackendMemory   = "memory"
	ClaimBackendPostgres = "postgres"
	ClaimBackendRedis    = "redis"
)

var ErrPaymentProvider = errors.New("exactly one of MOYASAR_SECRET_KEY and STRIPE_SECRET_KEY must be set")

const (
	defaultHTTPPort         = 8080
	defaultShutdownGrace    = 15 * time.Second
	defaultRequestTimeout   = 30 * time.Second
	defaultMigrationsPath   = "migrations"
	defaultAutoMigrate      = true
	defaultServiceName      = "nooks-api"
	defaultServiceVersion   = "0.1.0"
	defaultEnvironment      = "development"
	defaultLogLevel         = "info"
	defaultOTelSampleRate   = 1.0
	defaultExternalTimeout  = 15 * time.Second
	defaultMinChargeMinor   = 100
	defaultClaimTTL         = 10 * time.Minute
	defaultCommissionRate   = "0.01"
	defaultBranchesPath     = "branches.yaml"
	defaultDeepLinkSchemes  = "nooks"
	defaultSideEffectWorker = 4
)

// commissionRateScale matches the NUMERIC(9, 6) rate columns.
const commissionRateScale = 6

// LoadDotEnv loads the given env files when they exist. Variables already
// present in the environment win.
func LoadDotEnv(files ...string) error {
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	if err := godotenv.Load(present...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}

// Load reads configuration from environment variables, applying defaults when needed.
func Load() (*Config, error) {
	httpCfg, err := loadHTTPConfig()
	if err != nil {
		return nil, fmt.Errorf("loading HTTP config: %w", err)
	}

	redisCfg, err := loadRedisConfig()
	if err != nil {
		return nil, fmt.Errorf("loading redis config: %w", err)
	}

	telCfg, err := loadTelemetryConfig()
	if err != nil {
		return nil, fmt.Errorf("loading telemetry config: %w", err)
	}

	paymentCfg, err := loadPaymentConfig()
	if err != nil {
		return nil, fmt.Errorf("loading payment config: %w", err)
	}

	posCfg, err := loadPOSConfig()
	if err != nil {
		return nil, fmt.Errorf("loading POS config: %w", err)
	}

	deliveryCfg, err := loadDeliveryConfig()
	if err != nil {
		return nil, fmt.Errorf("loading delivery config: %w", err)
	}

	checkoutCfg, err := loadCheckoutConfig()
	if err != nil {
		return nil, fmt.Errorf("loading checkout config: %w", err)
	}

	commissionCfg, err := loadCommissionConfig()
	if err != nil {
		return nil, fmt.Errorf("loading commission config: %w", err)
	}

	return &Config{
		HTTP:       httpCfg,
		Database:   loadDatabaseConfig(),
		Kafka:      loadKafkaConfig(),
		Redis:      redisCfg,
		Telemetry:  telCfg,
		Service:    loadServiceConfig(),
		Payment:    paymentCfg,
		POS:        posCfg,
		Delivery:   deliveryCfg,
		Checkout:   checkoutCfg,
		Commission: commissionCfg,
		Branches:   BranchesConfig{Path: getEnvOrDefault("BRANCHES_FILE", defaultBranchesPath)},
	}, nil
}

func loadHTTPConfig() (HTTPConfig, error) {
	port, err := getIntEnv("API_HTTP_PORT", defaultHTTPPort)
	if err != nil {
		return HTTPConfig{}, err
	}

	grace, err := getDurationEnv("API_SHUTDOWN_GRACE", defaultShutdownGrace)
	if err != nil {
		return HTTPConfig{}, err
	}

	timeout, err := getDurationEnv("API_REQUEST_TIMEOUT", defaultRequestTimeout)
	if err != nil {
		return HTTPConfig{}, err
	}

	return HTTPConfig{
		Port:            port,
		ShutdownGrace:   grace,
		RequestTimeout:  timeout,
		DeepLinkSchemes: splitList(getEnvOrDefault("DEEP_LINK_SCHEMES", defaultDeepLinkSchemes)),
	}, nil
}

func loadDatabaseConfig() DatabaseConfig {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		databaseURL = buildDatabaseURL()
	}

	return DatabaseConfig{
		URL:            databaseURL,
		AutoMigrate:    getBoolEnv("AUTO_MIGRATE", defaultAutoMigrate),
		MigrationsPath: getEnvOrDefault("MIGRATIONS_PATH", defaultMigrationsPath),
	}
}

func loadKafkaConfig() KafkaConfig {
	return KafkaConfig{
		Brokers:        splitList(os.Getenv("KAFKA_BROKERS")),
		MirrorTopic:    os.Getenv("KAFKA_TOPIC_MIRROR"),
		CancelledTopic: os.Getenv("KAFKA_TOPIC_CANCELLED"),
		StatusTopic:    os.Getenv("KAFKA_TOPIC_STATUS"),
	}
}

func loadRedisConfig() (RedisConfig, error) {
	db, err := getIntEnv("REDIS_DB", 0)
	if err != nil {
		return RedisConfig{}, err
	}
	return RedisConfig{
		Addr:     os.Getenv("REDIS_ADDR"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
	}, nil
}

func loadTelemetryConfig() (TelemetryConfig, error) {
	sampleRate := defaultOTelSampleRate
	if value, ok := os.LookupEnv("OTEL_SAMPLE_RATE"); ok {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return TelemetryConfig{}, fmt.Errorf("invalid OTEL_SAMPLE_RATE: %w", err)
		}
		sampleRate = parsed
	}

	return TelemetryConfig{
		LogLevel:      getEnvOrDefault("LOG_LEVEL", defaultLogLevel),
		OTelEndpoint:  os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		EnableTracing: getBoolEnv("OTEL_ENABLE_TRACING", true),
		EnableMetrics: getBoolEnv("OTEL_ENABLE_METRICS", true),
		SampleRate:    sampleRate,
	}, nil
}

func loadServiceConfig() ServiceConfig {
	return ServiceConfig{
		Name:        getEnvOrDefault("API_SERVICE_NAME", defaultServiceName),
		Version:     getEnvOrDefault("SERVICE_VERSION", defaultServiceVersion),
		Environment: getEnvOrDefault("ENVIRONMENT", defaultEnvironment),
	}
}

func loadPaymentConfig() (PaymentConfig, error) {
	minCharge, err := getIntEnv("PAYMENT_MIN_CHARGE_MINOR", defaultMinChargeMinor)
	if err != nil {
		return PaymentConfig{}, err
	}
	timeout, err := getDurationEnv("PAYMENT_TIMEOUT", defaultExternalTimeout)
	if err != nil {
		return PaymentConfig{}, err
	}

	cfg := PaymentConfig{
		MoyasarSecretKey:     os.Getenv("MOYASAR_SECRET_KEY"),
		MoyasarWebhookSecret: os.Getenv("MOYASAR_WEBHOOK_SECRET"),
		MoyasarBaseURL:       os.Getenv("MOYASAR_BASE_URL"),
		StripeSecretKey:      os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret:  os.Getenv("STRIPE_WEBHOOK_SECRET"),
		StripeBaseURL:        os.Getenv("STRIPE_BASE_URL"),
		RedirectEndpoint:     os.Getenv("PAYMENT_REDIRECT_ENDPOINT"),
		MinChargeMinor:       int64(minCharge),
		Timeout:              timeout,
	}

	hasMoyasar := strings.TrimSpace(cfg.MoyasarSecretKey) != ""
	hasStripe := strings.TrimSpace(cfg.StripeSecretKey) != ""
	if hasMoyasar == hasStripe {
		return PaymentConfig{}, ErrPaymentProvider
	}
	return cfg, nil
}

func loadPOSConfig() (POSConfig, error) {
	timeout, err := getDurationEnv("POS_TIMEOUT", defaultExternalTimeout)
	if err != nil {
		return POSConfig{}, err
	}
	return POSConfig{
		BaseURL:      os.Getenv("POS_BASE_URL"),
		AccessToken:  os.Getenv("POS_ACCESS_TOKEN"),
		ClientID:     os.Getenv("POS_CLIENT_ID"),
		ClientSecret: os.Getenv("POS_CLIENT_SECRET"),
		Timeout:      timeout,
	}, nil
}

func loadDeliveryConfig() (DeliveryConfig, error) {
	timeout, err := getDurationEnv("OTO_TIMEOUT", defaultExternalTimeout)
	if err != nil {
		return DeliveryConfig{}, err
	}
	return DeliveryConfig{
		BaseURL:            os.Getenv("OTO_BASE_URL"),
		RefreshToken:       os.Getenv("OTO_REFRESH_TOKEN"),
		PickupLocationCode: os.Getenv("OTO_PICKUP_LOCATION_CODE"),
		WebhookSecret:      os.Getenv("OTO_WEBHOOK_SECRET"),
		Timeout:            timeout,
	}, nil
}

func loadCheckoutConfig() (CheckoutConfig, error) {
	backend := strings.ToLower(getEnvOrDefault("CHECKOUT_CLAIM_BACKEND", ClaimBackendPostgres))
	switch backend {
	case ClaimBackendMemory, ClaimBackendPostgres, ClaimBackendRedis:
	default:
		return CheckoutConfig{}, fmt.Errorf("invalid CHECKOUT_CLAIM_BACKEND %q", backend)
	}

	ttl, err := getDurationEnv("CHECKOUT_CLAIM_TTL", defaultClaimTTL)
	if err != nil {
		return CheckoutConfig{}, err
	}
	workers, err := getIntEnv("SIDE_EFFECT_WORKERS", defaultSideEffectWorker)
	if err != nil {
		return CheckoutConfig{}, err
	}
	queue, err := getIntEnv("SIDE_EFFECT_QUEUE_SIZE", 0)
	if err != nil {
		return CheckoutConfig{}, err
	}
	timeout, err := getDurationEnv("SIDE_EFFECT_TIMEOUT", 0)
	if err != nil {
		return CheckoutConfig{}, err
	}

	return CheckoutConfig{
		ClaimBackend:      backend,
		ClaimTTL:          ttl,
		SideEffectWorkers: workers,
		SideEffectQueue:   queue,
		SideEffectTimeout: timeout,
	}, nil
}

func loadCommissionConfig() (CommissionConfig, error) {
	raw := getEnvOrDefault("COMMISSION_RATE", defaultCommissionRate)
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return CommissionConfig{}, fmt.Errorf("invalid COMMISSION_RATE: %w", err)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return CommissionConfig{}, fmt.Errorf("invalid COMMISSION_RATE %s: must be between 0 and 1", raw)
	}
	if !rate.Equal(rate.Truncate(commissionRateScale)) {
		return CommissionConfig{}, fmt.Errorf("invalid COMMISSION_RATE %s: at most %d decimal places", raw, commissionRateScale)
	}
	return CommissionConfig{Rate: rate}, nil
}

func buildDatabaseURL() string {
	host := getEnvOrDefault("DB_HOST", "localhost")
	port := getEnvOrDefault("DB_PORT", "5432")
	user := getEnvOrDefault("DB_USER", "postgres")
	password := getEnvOrDefault("DB_PASSWORD", "postgres")
	dbName := getEnvOrDefault("DB_NAME", "nooks")
	sslMode := getEnvOrDefault("DB_SSLMODE", "disable")

	maxConns := getEnvOrDefault("DB_MAX_CONNS", "25")
	minConns := getEnvOrDefault("DB_MIN_CONNS", "5")

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s&pool_max_conns=%s&pool_min_conns=%s",
		user, password, host, port, dbName, sslMode, maxConns, minConns,
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		return value == "true"
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

// getDurationEnv accepts Go durations ("90s") or bare integers as seconds.
func getDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return defaultValue, nil
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
