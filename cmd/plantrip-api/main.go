package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/plantrip/internal/auth"
	"github.com/MarcoPoloResearchLab/plantrip/internal/config"
	"github.com/MarcoPoloResearchLab/plantrip/internal/database"
	"github.com/MarcoPoloResearchLab/plantrip/internal/generation"
	"github.com/MarcoPoloResearchLab/plantrip/internal/itinerary"
	"github.com/MarcoPoloResearchLab/plantrip/internal/logging"
	"github.com/MarcoPoloResearchLab/plantrip/internal/notify"
	"github.com/MarcoPoloResearchLab/plantrip/internal/orgs"
	"github.com/MarcoPoloResearchLab/plantrip/internal/photos"
	"github.com/MarcoPoloResearchLab/plantrip/internal/places"
	"github.com/MarcoPoloResearchLab/plantrip/internal/ratelimit"
	"github.com/MarcoPoloResearchLab/plantrip/internal/server"
	"github.com/MarcoPoloResearchLab/plantrip/internal/sharing"
	"github.com/MarcoPoloResearchLab/plantrip/internal/users"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile string
	envFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "plantrip-api",
		Short: "PlanTrip itinerary backend service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
	rootCmd.AddCommand(newIssueTokenCommand())

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file loaded before configuration")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, postgres)")
	cmd.PersistentFlags().String("database-dsn", defaults.GetString("database.dsn"), "Database DSN or SQLite path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log format (json, console)")
	cmd.PersistentFlags().String("redis-address", defaults.GetString("redis.address"), "Redis address for rate limiting")
	cmd.PersistentFlags().String("signing-secret", "", "Access token signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "redis.address", "redis-address")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func newIssueTokenCommand() *cobra.Command {
	var (
		userID      string
		email       string
		displayName string
	)
	cmd := &cobra.Command{
		Use:   "issue-token",
		Short: "Mint an access token for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
				SigningSecret: []byte(appConfig.Auth.SigningSecret),
				Issuer:        appConfig.Auth.Issuer,
				Audience:      appConfig.Auth.Audience,
				TokenTTL:      appConfig.Auth.TokenTTL,
			})
			if err != nil {
				return err
			}
			token, expiresIn, err := issuer.IssueToken(cmd.Context(), auth.Identity{
				UserID:      userID,
				Email:       email,
				DisplayName: displayName,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires in %ds\n", expiresIn)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "User id carried by the token")
	cmd.Flags().StringVar(&email, "email", "", "User email carried by the token")
	cmd.Flags().StringVar(&displayName, "display-name", "", "User display name carried by the token")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.Open(database.Options{
		Driver: appConfig.DatabaseDriver,
		DSN:    appConfig.DatabaseDSN,
	}, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	validator, err := auth.NewValidator(auth.ValidatorConfig{
		SigningSecret: []byte(appConfig.Auth.SigningSecret),
		Issuer:        appConfig.Auth.Issuer,
		Audience:      appConfig.Auth.Audience,
		CookieName:    appConfig.Auth.CookieName,
	})
	if err != nil {
		return err
	}

	userService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		return err
	}

	ids := itinerary.NewUUIDProvider()
	organizations, err := orgs.NewService(orgs.ServiceConfig{
		Database:   db,
		IDProvider: ids,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	trips, err := itinerary.NewService(itinerary.ServiceConfig{
		Database:              db,
		Clock:                 time.Now,
		IDProvider:            ids,
		Logger:                logger,
		Access:                itinerary.AnyOf(itinerary.OwnerPolicy, orgs.AdminPolicy),
		Memberships:           organizations,
		Generator:             newGenerator(appConfig.Generation, logger),
		Photos:                photos.NewUnsplash(photos.Config{AccessKey: appConfig.Photos.AccessKey, Timeout: appConfig.Photos.Timeout, Logger: logger}),
		UniqueCountryPerOwner: appConfig.UniqueCountryPerOwner,
	})
	if err != nil {
		return err
	}

	mailer, closeMailer, err := newMailSender(appConfig.Notify, logger)
	if err != nil {
		return err
	}
	defer closeMailer()
	dispatcher := notify.NewDispatcher(notify.DispatcherConfig{
		Sender:  mailer,
		Workers: appConfig.Notify.Workers,
		Logger:  logger,
	})
	defer dispatcher.Shutdown()

	var reportURL func(string) string
	if appConfig.FrontendURL != "" {
		reportURL = func(tripID string) string {
			return appConfig.FrontendURL + "/trips/" + tripID + "/feedback"
		}
	}
	shares, err := sharing.NewService(sharing.ServiceConfig{
		Trips:      trips,
		IDProvider: ids,
		TokenTTL:   appConfig.ShareTokenTTL,
		Logger:     logger,
		Notifier:   dispatcher,
		Owners:     userService,
		ReportURL:  reportURL,
	})
	if err != nil {
		return err
	}

	var redisClient *redis.Client
	if appConfig.RateLimit.RedisAddress != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     appConfig.RateLimit.RedisAddress,
			Password: appConfig.RateLimit.RedisPassword,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable at startup; requests pass unlimited until it recovers", zap.Error(err))
		}
	} else {
		logger.Info("rate limiting disabled; redis.address not set")
	}
	limiterConfig := ratelimit.Config{KeyFunc: server.RateLimitIdentity, Logger: logger}
	if redisClient != nil {
		limiterConfig.Client = redisClient
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Validator:     validator,
		Users:         userService,
		Trips:         trips,
		Sharing:       shares,
		Organizations: organizations,
		Places: places.NewClient(places.Config{
			APIKey:  appConfig.Places.APIKey,
			Timeout: appConfig.Places.Timeout,
			Logger:  logger,
		}),
		RateLimiter: ratelimit.New(limiterConfig),
		RateLimits: server.RateLimits{
			Generate:   ratelimit.PerHour("generate", appConfig.RateLimit.GeneratePerHour),
			Share:      ratelimit.PerMinute("share", appConfig.RateLimit.SharePerMinute),
			SharedView: ratelimit.PerMinute("shared_view", appConfig.RateLimit.SharedViewPerMinute),
			Feedback:   ratelimit.PerMinute("feedback", appConfig.RateLimit.FeedbackPerMinute),
		},
		AllowedOrigins: appConfig.AllowedOrigins,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func newGenerator(cfg config.GenerationConfig, logger *zap.Logger) itinerary.CandidateSource {
	var source itinerary.CandidateSource = generation.NewAnthropic(generation.AnthropicConfig{
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout,
		Logger:  logger,
	})
	if cfg.FixturesEnabled {
		logger.Warn("generation fixtures enabled", zap.String("prompt_prefix", generation.FixturePrefix))
		source = generation.Fixtures{Next: source}
	}
	return generation.NewLimited(source, cfg.MaxConcurrent, cfg.Timeout)
}

// newMailSender prefers Resend, then the AMQP relay, then logging only.
func newMailSender(cfg config.NotifyConfig, logger *zap.Logger) (notify.Sender, func(), error) {
	switch {
	case cfg.ResendAPIKey != "":
		sender, err := notify.NewResendSender(notify.ResendConfig{APIKey: cfg.ResendAPIKey, From: cfg.FromEmail})
		if err != nil {
			return nil, nil, err
		}
		return sender, func() {}, nil
	case cfg.AMQPURL != "":
		sender, err := notify.NewAMQPSender(cfg.AMQPURL)
		if err != nil {
			return nil, nil, err
		}
		return sender, func() { _ = sender.Close() }, nil
	default:
		return notify.LogSender{Logger: logger}, func() {}, nil
	}
}
