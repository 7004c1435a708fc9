package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port               string
	Env                string
	PublicBaseURL      string
	LogLevel           string
	AdminJWTSecret     string
	CORSAllowedOrigins []string

	// Scheduling
	ReminderInterval      time.Duration
	ReminderLookahead     time.Duration
	ReminderMaxResults    int
	ConversationRetention time.Duration
	JanitorInterval       time.Duration
	DefaultCountryPrefix  string
	ClinicTimezone        string
	ClinicPhone           string
	TemplateName          string
	TemplateLanguage      string

	// Calendar
	CalendarProvider   string
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRefreshToken string
	GoogleCalendarID   string
	CalDAVURL          string
	CalDAVUsername     string
	CalDAVPassword     string
	CalDAVCalendarPath string

	// Patient notifier
	NotifierChannel       string
	WhatsAppPhoneNumberID string
	WhatsAppAccessToken   string
	WhatsAppVerifyToken   string
	WhatsAppAppSecret     string
	WhatsAppGraphAPIBase  string
	SMSProvider           string
	TelnyxAPIKey          string
	TelnyxProfileID       string
	TelnyxFromNumber      string
	TwilioAccountSID      string
	TwilioAuthToken       string
	TwilioFromNumber      string

	// Staff alerts
	EmailProvider     string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string
	SESFromName       string
	StaffEmail        string
	StaffPhone        string
	StaffQueueURL     string

	// Storage
	ConversationStore        string
	ConversationFile         string
	LinksStore               string
	LinksFile                string
	SnapshotBucket           string
	DedupeBackend            string
	DatabaseURL              string
	RedisAddr                string
	RedisPassword            string
	RedisTLS                 bool
	DynamoConversationsTable string
	AWSRegion                string
	AWSAccessKeyID           string
	AWSSecretAccessKey       string
	AWSEndpointOverride      string

	// Resilience
	BreakerFailureThreshold int
	BreakerOpenTimeout      time.Duration
}

// Load reads configuration from environment variables. A .env file in the
// working directory is applied first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		PublicBaseURL:      strings.TrimRight(getEnv("PUBLIC_BASE_URL", ""), "/"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "")),

		ReminderInterval:      getEnvAsDuration("REMINDER_INTERVAL", 15*time.Minute),
		ReminderLookahead:     getEnvAsDuration("REMINDER_LOOKAHEAD", 48*time.Hour),
		ReminderMaxResults:    getEnvAsInt("REMINDER_MAX_RESULTS", 50),
		ConversationRetention: getEnvAsDuration("CONVERSATION_RETENTION", 7*24*time.Hour),
		JanitorInterval:       getEnvAsDuration("JANITOR_INTERVAL", 24*time.Hour),
		DefaultCountryPrefix:  getEnv("DEFAULT_COUNTRY_PREFIX", "+353"),
		ClinicTimezone:        getEnv("CLINIC_TIMEZONE", "Europe/Dublin"),
		ClinicPhone:           getEnv("CLINIC_PHONE", ""),
		TemplateName:          getEnv("TEMPLATE_NAME", "appointment_reminder"),
		TemplateLanguage:      getEnv("TEMPLATE_LANGUAGE", "en"),

		CalendarProvider:   strings.ToLower(strings.TrimSpace(getEnv("CALENDAR_PROVIDER", "google"))),
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRefreshToken: getEnv("GOOGLE_REFRESH_TOKEN", ""),
		GoogleCalendarID:   getEnv("GOOGLE_CALENDAR_ID", "primary"),
		CalDAVURL:          getEnv("CALDAV_URL", ""),
		CalDAVUsername:     getEnv("CALDAV_USERNAME", ""),
		CalDAVPassword:     getEnv("CALDAV_PASSWORD", ""),
		CalDAVCalendarPath: getEnv("CALDAV_CALENDAR_PATH", ""),

		NotifierChannel:       strings.ToLower(strings.TrimSpace(getEnv("NOTIFIER_CHANNEL", "whatsapp"))),
		WhatsAppPhoneNumberID: getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
		WhatsAppAccessToken:   getEnv("WHATSAPP_ACCESS_TOKEN", ""),
		WhatsAppVerifyToken:   getEnv("WHATSAPP_VERIFY_TOKEN", ""),
		WhatsAppAppSecret:     getEnv("WHATSAPP_APP_SECRET", ""),
		WhatsAppGraphAPIBase:  getEnv("WHATSAPP_GRAPH_API_BASE", ""),
		SMSProvider:           strings.ToLower(strings.TrimSpace(getEnv("SMS_PROVIDER", "auto"))),
		TelnyxAPIKey:          getEnv("TELNYX_API_KEY", ""),
		TelnyxProfileID:       getEnv("TELNYX_MESSAGING_PROFILE_ID", ""),
		TelnyxFromNumber:      getEnv("TELNYX_FROM_NUMBER", ""),
		TwilioAccountSID:      getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:       getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber:      getEnv("TWILIO_FROM_NUMBER", ""),

		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "sendgrid"))),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Clinic Reminders"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		SESFromName:       getEnv("SES_FROM_NAME", "Clinic Reminders"),
		StaffEmail:        getEnv("STAFF_EMAIL", ""),
		StaffPhone:        getEnv("STAFF_PHONE", ""),
		StaffQueueURL:     getEnv("STAFF_QUEUE_URL", ""),

		ConversationStore:        strings.ToLower(strings.TrimSpace(getEnv("CONVERSATION_STORE", "memory"))),
		ConversationFile:         getEnv("CONVERSATION_FILE", "conversations.json"),
		LinksStore:               strings.ToLower(strings.TrimSpace(getEnv("LINKS_STORE", "file"))),
		LinksFile:                getEnv("LINKS_FILE", "appointment_links.json"),
		SnapshotBucket:           getEnv("SNAPSHOT_BUCKET", ""),
		DedupeBackend:            strings.ToLower(strings.TrimSpace(getEnv("DEDUPE_BACKEND", "memory"))),
		DatabaseURL:              getEnv("DATABASE_URL", ""),
		RedisAddr:                getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:            getEnv("REDIS_PASSWORD", ""),
		RedisTLS:                 getEnvAsBool("REDIS_TLS", false),
		DynamoConversationsTable: getEnv("DYNAMO_CONVERSATIONS_TABLE", "reminder_conversations"),
		AWSRegion:                getEnv("AWS_REGION", "eu-west-1"),
		AWSAccessKeyID:           getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:       getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride:      getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		BreakerFailureThreshold: getEnvAsInt("BREAKER_FAILURE_THRESHOLD", 5),
		BreakerOpenTimeout:      getEnvAsDuration("BREAKER_OPEN_TIMEOUT", time.Minute),
	}
}

// Location resolves ClinicTimezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
