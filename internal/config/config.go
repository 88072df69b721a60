package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	MongoDB  MongoDBConfig
	Redis    RedisConfig
	MinIO    MinIOConfig
	RabbitMQ RabbitMQConfig
	Consul   ConsulConfig
	Auth     AuthConfig
	Quiz     QuizConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	ServiceName  string
	ServiceID    string
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BodyLimit    int
}

type MongoDBConfig struct {
	URI             string
	Database        string
	AppName         string
	PoolSize        uint64
	Timeout         time.Duration
	ConnectAttempts int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled is false when no address is configured; sessions then stay in memory.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

type MinIOConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	BucketName      string
	Region          string
}

type RabbitMQConfig struct {
	URI string
}

type ConsulConfig struct {
	Address string
}

type AuthConfig struct {
	JWTSecret         string
	AdminUsername     string
	AdminPasswordHash string
	AdminIDs          []string
	TokenTTL          time.Duration
}

type QuizConfig struct {
	DefaultQuestionCount int
	DefaultTimeLimit     int
	PinExpiryDays        int
	MaxImageSize         int
	MaxImageDimension    int
	SessionTTL           time.Duration
	BlobBackend          string
}

type LogConfig struct {
	Dir string
}

// Load loads the configuration from environment variables
func Load() *Config {
	serviceName := getEnv("SERVICE_NAME", "quiz-service")
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "3010"),
			Host:         getEnv("HOST", "0.0.0.0"),
			ServiceName:  serviceName,
			ServiceID:    getEnv("SERVICE_ID", serviceName+"-"+getEnv("HOSTNAME", "1")),
			Address:      getEnv("SERVICE_ADDRESS", "localhost"),
			ReadTimeout:  getEnvAsDuration("READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvAsDuration("WRITE_TIMEOUT", 30*time.Second),
			BodyLimit:    getEnvAsInt("BODY_LIMIT", 20*1024*1024),
		},
		MongoDB: MongoDBConfig{
			URI:             getEnv("MONGO_URI", "mongodb://localhost:27017"),
			Database:        getEnv("MONGO_DB", getEnv("DB_NAME", "fizika_test_bot")),
			AppName:         serviceName,
			PoolSize:        getEnvAsUint64("MONGO_POOL_SIZE", 20),
			Timeout:         getEnvAsDuration("MONGO_TIMEOUT", 10*time.Second),
			ConnectAttempts: getEnvAsInt("MONGO_CONNECT_ATTEMPTS", 5),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		MinIO: MinIOConfig{
			Endpoint:        getEnv("MINIO_ENDPOINT", ""),
			AccessKeyID:     getEnv("MINIO_ACCESS_KEY", "minioadmin"),
			SecretAccessKey: getEnv("MINIO_SECRET_KEY", "minioadmin"),
			UseSSL:          getEnvAsBool("MINIO_USE_SSL", false),
			BucketName:      getEnv("MINIO_BUCKET", "quiz-images"),
			Region:          getEnv("MINIO_REGION", "us-east-1"),
		},
		RabbitMQ: RabbitMQConfig{
			URI: getEnv("RABBITMQ_URI", ""),
		},
		Consul: ConsulConfig{
			Address: getEnv("CONSUL_ADDRESS", ""),
		},
		Auth: AuthConfig{
			JWTSecret:         getEnv("JWT_SECRET", "change-me"),
			AdminUsername:     getEnv("ADMIN_USERNAME", "admin"),
			AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
			AdminIDs:          getEnvAsSlice("ADMIN_IDS", nil),
			TokenTTL:          getEnvAsDuration("TOKEN_TTL", 12*time.Hour),
		},
		Quiz: QuizConfig{
			DefaultQuestionCount: getEnvAsInt("DEFAULT_QUESTION_COUNT", 10),
			DefaultTimeLimit:     getEnvAsInt("DEFAULT_TIME_LIMIT", 30),
			PinExpiryDays:        getEnvAsInt("PIN_EXPIRY_DAYS", 7),
			MaxImageSize:         getEnvAsInt("MAX_IMAGE_SIZE", 50000),
			MaxImageDimension:    getEnvAsInt("MAX_IMAGE_DIMENSION", 800),
			SessionTTL:           getEnvAsDuration("SESSION_TTL", 24*time.Hour),
			BlobBackend:          strings.ToLower(getEnv("BLOB_BACKEND", "mongo")),
		},
		Log: LogConfig{
			Dir: getEnv("LOG_DIR", "/fizika/log/quiz-service"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		intVal, err := strconv.Atoi(value)
		if err != nil {
			log.Printf("Error converting %s to int: %v", key, err)
			return defaultValue
		}
		return intVal
	}
	return defaultValue
}

func getEnvAsUint64(key string, defaultValue uint64) uint64 {
	if value, exists := os.LookupEnv(key); exists {
		intVal, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			log.Printf("Error converting %s to uint64: %v", key, err)
			return defaultValue
		}
		return intVal
	}
	return defaultValue
}

// getEnvAsDuration reads a whole number of seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		intVal, err := strconv.Atoi(value)
		if err != nil {
			log.Printf("Error converting %s to duration: %v", key, err)
			return defaultValue
		}
		return time.Duration(intVal) * time.Second
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			log.Printf("Error converting %s to bool: %v", key, err)
			return defaultValue
		}
		return boolVal
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
