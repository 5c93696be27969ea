package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		DBDriver:             DriverSQLite,
		Host:                 "0.0.0.0",
		Port:                 "8000",
		HTTPTimeout:          30,
		RedisLockTTL:         5,
		RedisLockWait:        10,
		KafkaSASLMechanism:   "SCRAM-SHA-512",
		KafkaCallTopic:       "phonelog.call-state",
		KafkaEventGroupID:    "phonelog",
		MQTTClientID:         "phonelog",
		MQTTTopicPrefix:      "phonelog",
		MQTTQoS:              1,
		PoolSize:             10,
		DeadLetterPoolSize:   3,
		ProcessorMaxAttempts: 5,

		DeadLetterEventInterval:      1,
		HealthCheckerMonitorInterval: 60,
	}
}

func TestDefaultsAreValid(t *testing.T) {
	require.Equal(t, DriverSQLite, Conf.DBDriver)
	require.Equal(t, "8000", Conf.Port)
	require.True(t, Conf.DBAutoMigrate)
	require.False(t, Conf.KafkaEnabled())
	require.False(t, Conf.MQTTEnabled())
	require.False(t, Conf.RedisEnabled())
	require.Equal(t, "SCRAM-SHA-512", Conf.KafkaSASLMechanism)
}

func TestValidate(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, Validate(&cfg))
	require.Equal(t, "0.0.0.0:8000", cfg.Addr())
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	cfg := validConfig()
	cfg.DBDriver = "mysql"

	require.Error(t, Validate(&cfg))
}

func TestValidatePostgresNeedsHostOrURL(t *testing.T) {
	cfg := validConfig()
	cfg.DBDriver = DriverPostgres

	require.ErrorIs(t, Validate(&cfg), ErrMissingPostgresHost)

	cfg.PostgresHost = "db"
	require.NoError(t, Validate(&cfg))

	cfg.PostgresHost = ""
	cfg.DBURL = "postgres://u:p@db:5432/calls?sslmode=disable"
	require.NoError(t, Validate(&cfg))
}

func TestValidateKafkaCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.KafkaBootstrapServer = "kafka:9092"

	require.Error(t, Validate(&cfg))

	cfg.KafkaUsername = "user"
	cfg.KafkaPassword = "pass"
	require.NoError(t, Validate(&cfg))
	require.True(t, cfg.KafkaEnabled())
}

func TestValidateQoS(t *testing.T) {
	cfg := validConfig()
	cfg.MQTTQoS = 3

	require.Error(t, Validate(&cfg))
}

func TestValidateRejectsUnknownSASLMechanism(t *testing.T) {
	cfg := validConfig()
	cfg.KafkaSASLMechanism = "PLAIN"
	require.Error(t, Validate(&cfg))
}

func TestValidateRejectsZeroTickerIntervals(t *testing.T) {
	cfg := validConfig()
	cfg.DeadLetterEventInterval = 0
	require.Error(t, Validate(&cfg))

	cfg = validConfig()
	cfg.HealthCheckerMonitorInterval = 0
	require.Error(t, Validate(&cfg))
}
