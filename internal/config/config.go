package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env                 string
	Port                string
	SessionSecret       string
	DatabaseURL         string
	RedisURL            string
	SupabaseURL         string // hosted auth (GoTrue) base URL; empty = local dev provider
	SupabaseSecretKey   string // service_role key, needed for the privileged inviter lookup
	EmailDomain         string // fixed corporate domain appended to signup local parts
	InviteBaseURL       string // base URL embedded in shareable invite links
	FrontendURLEndsWith string
	DevPassword         string
	AllowCrossSiteDev   bool
	SendinblueAPIKey    string // Brevo key for invite/welcome emails
	MailFrom            string
	HealthAdminKey      string
	ResetRedirectURL    string // landing page for provider password-reset links
}

// IsProduction reports whether the app runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	_ = viper.ReadInConfig()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	port := viper.GetString("PORT")
	if port == "" {
		port = "8080"
	}
	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	dbURL := viper.GetString("DATABASE_URL")
	if env == "test" {
		dbURL = viper.GetString("DATABASE_URL_TEST")
	}

	return &Config{
		Env:                 env,
		Port:                port,
		SessionSecret:       viper.GetString("SESSION_SECRET"),
		DatabaseURL:         dbURL,
		RedisURL:            viper.GetString("REDIS_URL"),
		SupabaseURL:         viper.GetString("SUPABASE_URL"),
		SupabaseSecretKey:   viper.GetString("SUPABASE_SECRET_KEY"),
		EmailDomain:         withDefault(viper.GetString("EMAIL_DOMAIN"), "wearemci.com"),
		InviteBaseURL:       withDefault(viper.GetString("INVITE_BASE_URL"), "https://analytics.wearemci.com"),
		FrontendURLEndsWith: viper.GetString("FRONTEND_URL_ENDS_WITH"),
		DevPassword:         viper.GetString("DEV_PASSWORD"),
		AllowCrossSiteDev:   strings.EqualFold(viper.GetString("ALLOW_CROSS_SITE_DEV"), "true"),
		SendinblueAPIKey:    viper.GetString("SENDINBLUE_API_KEY"),
		MailFrom:            viper.GetString("MAIL_FROM"),
		HealthAdminKey:      viper.GetString("HEALTH_ADMIN_KEY"),
		ResetRedirectURL:    withDefault(viper.GetString("RESET_REDIRECT_URL"), "https://analytics.wearemci.com/reset-password"),
	}, nil
}

func withDefault(s, def string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	return s
}
