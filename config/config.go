package config

import "time"

// Config is the reconciliation engine's full configuration surface, loaded
// from the environment via the env/env-default struct-tag convention.
type Config struct {
	AppName     string `env:"APP_NAME" env-default:"reconcile"`
	Port        int    `env:"PORT" env-default:"3002"`
	LogLevel    string `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs  bool   `env:"PRETTY_LOGS" env-default:"false"`

	HttpServerWriteTimeoutSeconds int `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerReadTimeoutSeconds  int `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	StartupMaxAttempts            int `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// PostgreSQL (Record Store)
	DatabaseDriver              string        `env:"DB_DRIVER" env-default:"postgres"`
	DatabaseHost                string        `env:"DB_HOST" env-default:""`
	DatabasePort                string        `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName            string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword            string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                string        `env:"DB_NAME" env-default:"reconcile"`
	DatabaseSSLMode             string        `env:"DB_SQL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns        int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns        int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime     time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	DatabaseMigrationFolderPath string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"internal/pgstore/migrations"`

	// Redis (optional Cache)
	CacheEnabled  bool          `env:"CACHE_ENABLED" env-default:"false"`
	RedisHost     string        `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort     int           `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword string        `env:"REDIS_PASSWORD" env-default:""`
	RedisDB       int           `env:"REDIS_DB" env-default:"0"`
	CacheTTL      time.Duration `env:"CACHE_TTL" env-default:"15m"`

	// Kafka job intake (optional)
	KafkaEnabled       bool     `env:"KAFKA_ENABLED" env-default:"false"`
	KafkaBrokers       []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaJobsTopic     string   `env:"KAFKA_JOBS_TOPIC" env-default:"reconcile.jobs"`
	KafkaConsumerGroup string   `env:"KAFKA_CONSUMER_GROUP" env-default:"reconcile-workers"`

	// Neo4j (optional relationship-hint blocking assist)
	GraphEnabled    bool   `env:"GRAPH_ENABLED" env-default:"false"`
	GraphDBURI      string `env:"GRAPH_DB_URI" env-default:"neo4j://localhost:7687"`
	GraphDBUser     string `env:"GRAPH_DB_USER" env-default:""`
	GraphDBPassword string `env:"GRAPH_DB_PASSWORD" env-default:""`

	// External API egress (resilience "api" class)
	APIBaseURL        string        `env:"API_BASE_URL" env-default:""`
	APIRequestTimeout time.Duration `env:"API_REQUEST_TIMEOUT" env-default:"10s"`

	// Job Processor (§4.6)
	JobConcurrency              int `env:"JOB_CONCURRENCY" env-default:"0"` // 0 => runtime.NumCPU()
	JobQueueCapacity            int `env:"JOB_QUEUE_CAPACITY" env-default:"256"`
	PerRecordCheckpointInterval int `env:"PER_RECORD_CHECKPOINT_INTERVAL" env-default:"500"`
	ProgressPublishInterval     int `env:"PROGRESS_PUBLISH_INTERVAL" env-default:"500"`
	JobDeadlineSeconds          int `env:"JOB_DEADLINE_SECONDS" env-default:"3600"`
	StuckSweepIntervalSeconds   int `env:"STUCK_SWEEP_INTERVAL_SECONDS" env-default:"30"`
	MatchBatchSize              int `env:"MATCH_BATCH_SIZE" env-default:"100"`

	// Matching Engine (§4.4)
	AdjudicationBandFraction float64 `env:"ADJUDICATION_BAND_FRACTION" env-default:"0.75"`
	FuzzyAlgorithmDefault    string  `env:"FUZZY_ALGORITHM_DEFAULT" env-default:"jaro_winkler"`

	// Resilience Manager (§4.8)
	DBFailureThreshold    int           `env:"DB_FAILURE_THRESHOLD" env-default:"5"`
	DBRecoveryTimeout     time.Duration `env:"DB_RECOVERY_TIMEOUT" env-default:"30s"`
	CacheFailureThreshold int           `env:"CACHE_FAILURE_THRESHOLD" env-default:"10"`
	CacheRecoveryTimeout  time.Duration `env:"CACHE_RECOVERY_TIMEOUT" env-default:"15s"`
	APIFailureThreshold   int           `env:"API_FAILURE_THRESHOLD" env-default:"5"`
	APIRecoveryTimeout    time.Duration `env:"API_RECOVERY_TIMEOUT" env-default:"60s"`
	APIMaxRetries         int           `env:"API_MAX_RETRIES" env-default:"3"`
	APIInitialBackoffMS   int           `env:"API_INITIAL_BACKOFF_MS" env-default:"100"`
}
