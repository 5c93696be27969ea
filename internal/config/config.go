package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	DBDriver                string `mapstructure:"db_driver"                 validate:"required,oneof=postgres sqlite"`
	DBURL                   string `mapstructure:"db_url"`
	DBAutoMigrate           bool   `mapstructure:"db_auto_migrate"`
	PostgresHost            string `mapstructure:"postgres_host"`
	PostgresUsername        string `mapstructure:"postgres_username"`
	PostgresPassword        string `mapstructure:"postgres_password"`
	PostgresPort            string `mapstructure:"postgres_port"`
	PostgresDatabase        string `mapstructure:"postgres_database"`
	DBIntervalCB            uint32 `mapstructure:"db_interval_cb"`
	DBConsecutiveFailuresCB uint32 `mapstructure:"db_consecutive_failures_cb"`

	Host        string `mapstructure:"host"         validate:"required"`
	Port        string `mapstructure:"port"         validate:"required,numeric"`
	Debug       bool   `mapstructure:"debug"`
	HTTPTimeout int    `mapstructure:"http_timeout" validate:"gt=0"`

	ReportsJWTSecret string `mapstructure:"reports_jwt_secret"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisLockTTL  int    `mapstructure:"redis_lock_ttl"  validate:"gt=0"`
	RedisLockWait int    `mapstructure:"redis_lock_wait" validate:"gt=0"`

	KafkaBootstrapServer       string `mapstructure:"kafka_bootstrap_server"`
	KafkaUsername              string `mapstructure:"kafka_username"                validate:"required_with=KafkaBootstrapServer"`
	KafkaPassword              string `mapstructure:"kafka_password"                validate:"required_with=KafkaBootstrapServer"`
	KafkaSASLMechanism         string `mapstructure:"kafka_sasl_mechanism"          validate:"oneof=SCRAM-SHA-256 SCRAM-SHA-512"`
	KafkaCallTopic             string `mapstructure:"kafka_call_topic"              validate:"required"`
	KafkaEventTopic            string `mapstructure:"kafka_event_topic"`
	KafkaEventGroupID          string `mapstructure:"kafka_event_group_id"          validate:"required"`
	KafkaIntervalCB            uint32 `mapstructure:"kafka_interval_cb"`
	KafkaConsecutiveFailuresCB uint32 `mapstructure:"kafka_consecutive_failures_cb"`

	MQTTBroker      string `mapstructure:"mqtt_broker"`
	MQTTClientID    string `mapstructure:"mqtt_client_id"    validate:"required"`
	MQTTTopicPrefix string `mapstructure:"mqtt_topic_prefix" validate:"required"`
	MQTTQoS         uint8  `mapstructure:"mqtt_qos"          validate:"lte=2"`

	LogLevel    string `mapstructure:"log_level"`
	LogFilePath string `mapstructure:"log_file_path"`

	PoolSize           int `mapstructure:"pool_size"             validate:"gt=0"`
	DeadLetterPoolSize int `mapstructure:"dead_letter_pool_size" validate:"gt=0"`

	ProcessorMaxAttempts uint `mapstructure:"processor_max_attempts" validate:"gt=0"`

	DeadLetterEventMaxRetries int `mapstructure:"deadletter_event_max_retries"`
	DeadLetterEventLimit      int `mapstructure:"deadletter_event_limit"`
	DeadLetterEventInterval   int `mapstructure:"deadletter_event_interval"    validate:"gt=0"`
	DeadLetterEventRetryDelay int `mapstructure:"deadletter_event_retry_delay"`

	HealthCheckerMonitorInterval int `mapstructure:"health_checker_monitor_interval" validate:"gt=0"`

	PrometheusPort    string `mapstructure:"prometheus_port"`
	PrometheusTimeout int    `mapstructure:"prometheus_timeout"`
}

// KafkaEnabled reports whether a broker is configured.
func (c *Config) KafkaEnabled() bool {
	return c.KafkaBootstrapServer != ""
}

func (c *Config) MQTTEnabled() bool {
	return c.MQTTBroker != ""
}

func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

var Conf Config

func init() {
	err := loadEnvConfig(&Conf)
	if err != nil {
		zap.NewExample().Fatal("failed to load config", zap.String("error", err.Error()))
	}
}

func loadEnvConfig(cfg *Config) error {
	viper.AutomaticEnv()
	viper.AllowEmptyEnv(true)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setupDefaults()

	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")

	err := viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError

		ok := errors.As(err, &configFileNotFoundError)
		if !ok {
			return err
		}
	}

	err = viper.Unmarshal(cfg)
	if err != nil {
		return err
	}

	return Validate(cfg)
}

var ErrMissingPostgresHost = errors.New("POSTGRES_HOST or DB_URL is required for the postgres driver")

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	err := validator.New().Struct(cfg)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if cfg.DBDriver == DriverPostgres && cfg.DBURL == "" && cfg.PostgresHost == "" {
		return ErrMissingPostgresHost
	}

	return nil
}

func setupDefaults() {
	confType := reflect.TypeOf(Conf)
	for i := range confType.NumField() {
		field := confType.Field(i)
		viper.SetDefault(field.Tag.Get("mapstructure"), "")
	}

	viper.SetDefault("DB_DRIVER", DriverSQLite)
	viper.SetDefault("DB_AUTO_MIGRATE", "true")
	viper.SetDefault("DB_INTERVAL_CB", "30")
	viper.SetDefault("DB_CONSECUTIVE_FAILURES_CB", "3")
	viper.SetDefault("HOST", "0.0.0.0")
	viper.SetDefault("PORT", "8000")
	viper.SetDefault("DEBUG", "false")
	viper.SetDefault("HTTP_TIMEOUT", "30")
	viper.SetDefault("REDIS_LOCK_TTL", "5")
	viper.SetDefault("REDIS_LOCK_WAIT", "10")
	viper.SetDefault("KAFKA_SASL_MECHANISM", "SCRAM-SHA-512")
	viper.SetDefault("KAFKA_CALL_TOPIC", "phonelog.call-state")
	viper.SetDefault("KAFKA_EVENT_GROUP_ID", "phonelog")
	viper.SetDefault("KAFKA_INTERVAL_CB", "30")
	viper.SetDefault("KAFKA_CONSECUTIVE_FAILURES_CB", "5")
	viper.SetDefault("MQTT_CLIENT_ID", "phonelog")
	viper.SetDefault("MQTT_TOPIC_PREFIX", "phonelog")
	viper.SetDefault("MQTT_QOS", "1")
	viper.SetDefault("LOG_LEVEL", "INFO")
	viper.SetDefault("LOG_FILE_PATH", "./access.log")
	viper.SetDefault("POOL_SIZE", "10")
	viper.SetDefault("DEAD_LETTER_POOL_SIZE", "3")
	viper.SetDefault("PROCESSOR_MAX_ATTEMPTS", "5")
	viper.SetDefault("DEADLETTER_EVENT_MAX_RETRIES", "10")
	viper.SetDefault("DEADLETTER_EVENT_LIMIT", "100")
	viper.SetDefault("DEADLETTER_EVENT_INTERVAL", "1")
	viper.SetDefault("DEADLETTER_EVENT_RETRY_DELAY", "1")
	viper.SetDefault("HEALTH_CHECKER_MONITOR_INTERVAL", "60")
	viper.SetDefault("PROMETHEUS_PORT", "2112")
	viper.SetDefault("PROMETHEUS_TIMEOUT", "60")
}
