package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAccessTokenMaxAge  = 3600        // 1 hour
	defaultRefreshTokenMaxAge = 10 * 86400 // 10 days
	defaultFreeContactQuota   = 7
	defaultOTPMaxAge          = 300
	defaultLocationTTL        = 600

	defaultLoginMaxFailedAttempts = 5
	defaultLoginLockoutSeconds    = 120
	defaultOTPMaxAttempts         = 5
)

type Config struct {
	// EnvFileLoaded reports whether a .env file was found on startup.
	EnvFileLoaded bool

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	ServerPort string
	AppDomain  string
	// AllowedOrigins are host patterns accepted on the GPS WebSocket.
	AllowedOrigins []string

	JWTSecret   string
	JWTIssuer   string
	JWTAudience string

	AccessTokenMaxAge  int
	RefreshTokenMaxAge int

	RedisURL string

	// PushProvider selects the push gateway: "fcm" or "expo".
	PushProvider   string
	FCMProjectID   string
	FCMClientEmail string
	FCMPrivateKey  string

	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicURL       string

	OpenAIAPIKey          string
	OpenAIBaseURL         string
	OpenAITranscribeModel string
	OpenAIChatModel       string

	MQTTBroker   string
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string
	MQTTGPSTopic string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	LogLevel  string
	LogFormat string

	FreeContactQuota int
	OTPMaxAge        int
	LocationTTL      int
	WorkerCount      int

	LoginMaxFailedAttempts int
	LoginLockoutSeconds    int
	OTPMaxAttempts         int

	// Token bucket applied to /api/auth per client IP and path.
	RateLimitEnabled        bool
	RateLimitCapacity       int
	RateLimitRefillTokens   int
	RateLimitRefillInterval time.Duration
	RateLimitTTL            time.Duration

	// Welcome notification sent to the glasses when a contact is added.
	ContactNotificationTitle    string
	ContactNotificationBody     string
	ContactNotificationImageURL string
	ContactNotificationAudioURL string
	ContactNotificationCategory string
}

func LoadConfig() (*Config, error) {
	envLoaded := godotenv.Load() == nil

	return &Config{
		EnvFileLoaded: envLoaded,

		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBSSLMode:  getEnv("DB_SSLMODE", "require"),

		ServerPort: getEnv("SERVER_PORT", "8080"),
		AppDomain:  os.Getenv("APP_DOMAIN"),

		AllowedOrigins: getEnvList("ALLOWED_ORIGINS"),

		JWTSecret:   os.Getenv("JWT_SECRET"),
		JWTIssuer:   getEnv("JWT_ISSUER", "roaia"),
		JWTAudience: getEnv("JWT_AUDIENCE", "roaia-clients"),

		AccessTokenMaxAge:  getEnvInt("ACCESS_TOKEN_MAX_AGE", defaultAccessTokenMaxAge),
		RefreshTokenMaxAge: getEnvInt("REFRESH_TOKEN_MAX_AGE", defaultRefreshTokenMaxAge),

		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		PushProvider:   getEnv("PUSH_PROVIDER", "fcm"),
		FCMProjectID:   os.Getenv("FCM_PROJECT_ID"),
		FCMClientEmail: os.Getenv("FCM_CLIENT_EMAIL"),
		FCMPrivateKey:  os.Getenv("FCM_PRIVATE_KEY"),

		R2AccountID:       os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2BucketName:      os.Getenv("R2_BUCKET_NAME"),
		R2PublicURL:       os.Getenv("R2_PUBLIC_URL"),

		OpenAIAPIKey:          os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:         getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAITranscribeModel: getEnv("OPENAI_TRANSCRIBE_MODEL", "whisper-1"),
		OpenAIChatModel:       getEnv("OPENAI_CHAT_MODEL", "gpt-4o"),

		MQTTBroker:   os.Getenv("MQTT_BROKER"),
		MQTTClientID: getEnv("MQTT_CLIENT_ID", "roaia-backend"),
		MQTTUsername: os.Getenv("MQTT_USERNAME"),
		MQTTPassword: os.Getenv("MQTT_PASSWORD"),
		MQTTGPSTopic: getEnv("MQTT_GPS_TOPIC", "roaia/glasses/+/gps"),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:     os.Getenv("SMTP_FROM"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		FreeContactQuota: getEnvInt("FREE_CONTACT_QUOTA", defaultFreeContactQuota),
		OTPMaxAge:        getEnvInt("OTP_MAX_AGE", defaultOTPMaxAge),
		LocationTTL:      getEnvInt("LOCATION_TTL", defaultLocationTTL),
		WorkerCount:      getEnvInt("WORKER_COUNT", 2),

		LoginMaxFailedAttempts: getEnvInt("LOGIN_MAX_FAILED_ATTEMPTS", defaultLoginMaxFailedAttempts),
		LoginLockoutSeconds:    getEnvInt("LOGIN_LOCKOUT_SECONDS", defaultLoginLockoutSeconds),
		OTPMaxAttempts:         getEnvInt("OTP_MAX_ATTEMPTS", defaultOTPMaxAttempts),

		RateLimitEnabled:        getEnvBool("RATE_LIMIT_ENABLED", true),
		RateLimitCapacity:       getEnvInt("RATE_LIMIT_CAPACITY", 20),
		RateLimitRefillTokens:   getEnvInt("RATE_LIMIT_REFILL_TOKENS", 1),
		RateLimitRefillInterval: getEnvDuration("RATE_LIMIT_REFILL_INTERVAL", 3*time.Second),
		RateLimitTTL:            getEnvDuration("RATE_LIMIT_TTL", 10*time.Minute),

		ContactNotificationTitle:    getEnv("CONTACT_NOTIFICATION_TITLE", "New contact"),
		ContactNotificationBody:     getEnv("CONTACT_NOTIFICATION_BODY", "{name}, you have a new contact:"),
		ContactNotificationImageURL: os.Getenv("CONTACT_NOTIFICATION_IMAGE_URL"),
		ContactNotificationAudioURL: os.Getenv("CONTACT_NOTIFICATION_AUDIO_URL"),
		ContactNotificationCategory: getEnv("CONTACT_NOTIFICATION_CATEGORY", "Normal"),
	}, nil
}

// AccessTokenTTL returns the access token lifetime as a duration.
func (c *Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenMaxAge) * time.Second
}

// RefreshTokenTTL returns the refresh token lifetime as a duration.
func (c *Config) RefreshTokenTTL() time.Duration {
	return time.Duration(c.RefreshTokenMaxAge) * time.Second
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt falls back on missing, malformed or non-positive values.
func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func getEnvBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

// getEnvDuration accepts Go duration syntax such as "3s" or "10m".
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

// getEnvList splits a comma separated value, dropping empty items.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
