package router

import (
	"net/http"

	"mci-backend/internal/application/confirmation"
	emailsvc "mci-backend/internal/application/emails"
	invsvc "mci-backend/internal/application/invites"
	"mci-backend/internal/application/provisioning"
	"mci-backend/internal/application/registration"
	sessionsvc "mci-backend/internal/application/session"
	"mci-backend/internal/config"
	"mci-backend/internal/identity"
	"mci-backend/internal/infrastructure/database"
	"mci-backend/internal/infrastructure/localauth"
	"mci-backend/internal/infrastructure/supabase"
	authhandler "mci-backend/internal/interfaces/handlers/auth"
	healthhandler "mci-backend/internal/interfaces/handlers/health"
	invhandler "mci-backend/internal/interfaces/handlers/invites"
	signuphandler "mci-backend/internal/interfaces/handlers/signup"
	"mci-backend/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type gormDBPinger struct {
	db *gorm.DB
}

func (g *gormDBPinger) Ping() error {
	if g == nil || g.db == nil {
		return nil
	}
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func CreateApp(cfg *config.Config) (*fiber.App, *gorm.DB, *redis.Client, error) {
	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler,
		EnableTrustedProxyCheck: true,
	})

	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix: cfg.FrontendURLEndsWith,
		DevPassword:   cfg.DevPassword,
	}))

	sessionCfg := middleware.SessionConfig{
		Secret:            cfg.SessionSecret,
		RedisURL:          cfg.RedisURL,
		AllowCrossSiteDev: cfg.AllowCrossSiteDev,
		IsProduction:      cfg.IsProduction(),
	}
	sessionHandler, rdb, err := middleware.Session(sessionCfg)
	if err != nil {
		return nil, nil, nil, err
	}
	app.Use(sessionHandler)
	app.Use(middleware.HealthMarker(rdb))
	app.Use(middleware.Tracing())
	app.Use(middleware.RouteLogger())

	hh := &healthhandler.Handlers{
		Rdb:            rdb,
		DB:             nil,
		AuthURL:        cfg.SupabaseURL,
		HealthAdminKey: cfg.HealthAdminKey,
	}
	app.Get("/health/json", hh.JSON)
	app.Get("/health/reset", hh.Reset)

	var db *gorm.DB
	if cfg.DatabaseURL != "" {
		db, err = database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := database.AutoMigrate(db); err != nil {
			return nil, nil, nil, err
		}
		hh.DB = &gormDBPinger{db: db}
	}

	if db == nil {
		return app, nil, rdb, nil
	}

	// Hosted auth when SUPABASE_URL is set; local bcrypt provider otherwise.
	var provider identity.Provider
	if cfg.SupabaseURL != "" {
		provider = &supabase.Client{BaseURL: cfg.SupabaseURL, SecretKey: cfg.SupabaseSecretKey}
	} else {
		if err := localauth.Migrate(db); err != nil {
			return nil, nil, nil, err
		}
		provider = localauth.New(db)
	}

	var emailSender emailsvc.Sender
	if cfg.SendinblueAPIKey != "" {
		emailSender = &emailsvc.BrevoClient{APIKey: cfg.SendinblueAPIKey, MailFrom: cfg.MailFrom}
	}

	inviteService := &invsvc.Service{DB: db, BaseURL: cfg.InviteBaseURL}
	pending := &registration.PendingStore{Rdb: rdb}
	registrator := &registration.Service{
		Invites:     inviteService,
		Provider:    provider,
		Pending:     pending,
		EmailDomain: cfg.EmailDomain,
	}
	reconciler := &provisioning.Reconciler{Store: &provisioning.Store{DB: db}}
	resolver := sessionsvc.NewResolver(&sessionsvc.GormStore{DB: db}, provider)
	confirmer := &confirmation.Service{
		Provider:   provider,
		Pending:    pending,
		Reconciler: reconciler,
		Resolver:   resolver,
	}

	ah := &authhandler.Handlers{
		Provider:    provider,
		Resolver:    resolver,
		Registrator: registrator,
		Rdb:         rdb,
		Config:      sessionCfg,
		ResetURL:    cfg.ResetRedirectURL,
	}
	ag := app.Group("/api/v1/auth")
	ag.Post("/login", ah.Login)
	ag.Get("/me", ah.Me)
	ag.Delete("/logout", ah.Logout)
	ag.Post("/forgot-password", ah.ForgotPassword)
	ag.Post("/reset-password", ah.ResetPassword)

	sh := &signuphandler.Handlers{
		Registrator: registrator,
		Confirmer:   confirmer,
		Emails:      emailSender,
		Rdb:         rdb,
		Config:      sessionCfg,
	}
	sg := app.Group("/api/v1/signup")
	sg.Post("/register", sh.Register)
	sg.Post("/verify", sh.VerifyCode)
	sg.Post("/resend", sh.ResendCode)

	ih := &invhandler.Handlers{
		Invites:      inviteService,
		Emails:       emailSender,
		IsProduction: cfg.IsProduction(),
	}
	app.Get("/api/v1/invites/check/:token", ih.CheckToken)
	app.Post("/api/v1/invites/test", ih.CreateTest)
	ig := app.Group("/api/v1/invites", middleware.RequireAuth(), middleware.RequireAdmin(resolver))
	ig.Post("/", ih.Create)
	ig.Get("/", ih.List)
	ig.Delete("/:id", ih.Revoke)

	return app, db, rdb, nil
}

func Handler(app *fiber.App) http.Handler {
	return adaptor.FiberApp(app)
}
