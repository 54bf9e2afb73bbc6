package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"advancedreminders/internal/auth"
	"advancedreminders/internal/config"
	"advancedreminders/internal/database"
	"advancedreminders/internal/handlers"
	"advancedreminders/internal/lock"
	"advancedreminders/internal/reminder"
	"advancedreminders/internal/repository"
	"advancedreminders/internal/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func main() {
	once := flag.Bool("once", false, "run the reminder job once and exit")
	issueToken := flag.String("issue-token", "", "print an admin API token for the given operator and exit")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of the token printed by -issue-token")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatal("Failed to load configuration: ", err)
	}
	setupLogging(cfg.LogLevel)

	tokens := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if *issueToken != "" {
		token, err := tokens.GenerateToken(*issueToken, *tokenTTL)
		if err != nil {
			logrus.Fatal("Failed to issue token: ", err)
		}
		fmt.Println(token)
		return
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		logrus.Fatal("Failed to initialize database: ", err)
	}

	job := reminder.NewJob(repositories(db), newMailer(cfg.Mail), reminder.NewSettings(cfg.Reminders, cfg.Mail))
	if rdb := newRedis(cfg.Redis); rdb != nil {
		defer rdb.Close()
		job.SetLocker(lock.NewRedisLock(rdb, cfg.Redis.LockKey, cfg.Redis.LockTTL))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *once {
		summary, err := job.Run(ctx, reminder.RunOptions{})
		if err != nil {
			logrus.Fatal("Reminder run failed: ", err)
		}
		logrus.WithFields(logrus.Fields{
			"run_id":   summary.RunID,
			"sent":     summary.Sent,
			"failures": summary.Failures,
		}).Info("reminder run finished")
		return
	}

	worker := services.NewReminderWorker(job, cfg.Worker.Interval, logrus.WithField("component", "worker"))
	worker.Start(ctx)

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           newRouter(cfg, db, tokens, job),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logrus.Infof("Server starting on port %s...", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatal(err)
		}
	}()

	<-ctx.Done()
	logrus.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("server shutdown failed")
	}
	select {
	case <-worker.Done():
	case <-shutdownCtx.Done():
		logrus.Warn("reminder run still in progress at shutdown")
	}
}

func setupLogging(level string) {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		logrus.Warnf("unknown log level %q, using info", level)
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
}

func repositories(db *gorm.DB) reminder.Repositories {
	return reminder.Repositories{
		Courses:     repository.NewCourseRepository(db),
		Users:       repository.NewUserRepository(db),
		Completions: repository.NewCompletionRepository(db),
		History:     repository.NewHistoryRepository(db),
	}
}

func newMailer(cfg config.MailConfig) reminder.Mailer {
	if cfg.Transport == "smtp" {
		logrus.Infof("using SMTP relay %s:%d", cfg.SMTPHost, cfg.SMTPPort)
		return services.NewSMTPService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword)
	}
	if cfg.SendGridAPIKey == "" {
		logrus.Warn("mail.sendgrid_api_key is empty, sends will fail")
	}
	return services.NewEmailService(cfg.SendGridAPIKey)
}

// newRedis returns nil when no redis address is configured
func newRedis(cfg config.RedisConfig) *redis.Client {
	if cfg.Address == "" {
		logrus.Info("redis not configured, runs are not locked across processes")
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func newRouter(cfg *config.Config, db *gorm.DB, tokens *auth.Tokens, job *reminder.Job) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery(), handlers.RequestLogger(logrus.WithField("component", "http")))

	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		logrus.WithError(err).Warn("invalid trusted proxies")
	}

	if len(cfg.Server.AllowedOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = cfg.Server.AllowedOrigins
		corsConfig.AddAllowHeaders("Authorization")
		router.Use(cors.New(corsConfig))
	}

	router.GET("/", handlers.HomeHandler)
	router.GET("/health", handlers.HealthHandler(func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}))

	protected := router.Group("")
	protected.Use(auth.AuthMiddleware(tokens))
	{
		protected.POST("/reminders/run", handlers.NewReminderHandler(job).DryRun)
	}

	return router
}
