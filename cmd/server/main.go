package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tyemirov/sessiond/internal/sessionkit"
	"github.com/tyemirov/sessiond/internal/sessionkitpg"
	"github.com/tyemirov/sessiond/internal/web"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "sessiond",
		Short:   "Session service with JWT access tokens, rotating refresh tokens, and immediate revocation",
		PreRunE: prepareServerConfig,
		RunE:    runServer,
	}

	rootCmd.Flags().String("listen_addr", ":8080", "HTTP listen address")
	rootCmd.Flags().String("cookie_domain", "", "Cookie domain; empty for host-only")
	rootCmd.Flags().String("jwt_signing_key", "", "HS256 signing secret for access tokens")
	rootCmd.Flags().String("issuer", "sessiond", "Issuer claim for access tokens")
	rootCmd.Flags().Duration("access_ttl", 15*time.Minute, "Access token TTL")
	rootCmd.Flags().Duration("refresh_ttl", 7*24*time.Hour, "Refresh token TTL")
	rootCmd.Flags().Bool("dev_insecure_http", false, "Allow insecure HTTP for local dev")
	rootCmd.Flags().String("database_url", "", "Database URL for refresh tokens (postgres://, sqlite://, or pgx:// for the native driver; leave empty for in-memory store)")
	rootCmd.Flags().String("redis_addr", "", "Redis address for the access-token denylist (leave empty for in-memory denylist)")
	rootCmd.Flags().Duration("cleanup_interval", time.Hour, "Interval between expired refresh token sweeps (0 disables the sweep)")
	rootCmd.Flags().Bool("enable_cors", false, "Enable CORS for cross-origin clients (required to set SameSite=None cookies)")
	rootCmd.Flags().StringSlice("cors_allowed_origins", []string{}, "Allowed origins when CORS is enabled (required if enable_cors is true)")

	_ = viper.BindPFlag("listen_addr", rootCmd.Flags().Lookup("listen_addr"))
	_ = viper.BindPFlag("cookie_domain", rootCmd.Flags().Lookup("cookie_domain"))
	_ = viper.BindPFlag("jwt_signing_key", rootCmd.Flags().Lookup("jwt_signing_key"))
	_ = viper.BindPFlag("issuer", rootCmd.Flags().Lookup("issuer"))
	_ = viper.BindPFlag("access_ttl", rootCmd.Flags().Lookup("access_ttl"))
	_ = viper.BindPFlag("refresh_ttl", rootCmd.Flags().Lookup("refresh_ttl"))
	_ = viper.BindPFlag("dev_insecure_http", rootCmd.Flags().Lookup("dev_insecure_http"))
	_ = viper.BindPFlag("database_url", rootCmd.Flags().Lookup("database_url"))
	_ = viper.BindPFlag("redis_addr", rootCmd.Flags().Lookup("redis_addr"))
	_ = viper.BindPFlag("cleanup_interval", rootCmd.Flags().Lookup("cleanup_interval"))
	_ = viper.BindPFlag("enable_cors", rootCmd.Flags().Lookup("enable_cors"))
	_ = viper.BindPFlag("cors_allowed_origins", rootCmd.Flags().Lookup("cors_allowed_origins"))

	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	return rootCmd
}

const (
	accessCookieName  = "app_access"
	refreshCookieName = "app_refresh"

	configCodeMissingJWTSigningKey    = "config.missing_jwt_signing_key"
	configCodeMissingIssuer           = "config.missing_issuer"
	configCodeInvalidAccessTTL        = "config.invalid_access_ttl"
	configCodeInvalidRefreshTTL       = "config.invalid_refresh_ttl"
	configCodeUninitializedServerConf = "config.uninitialized_server_config"
)

type contextKey string

const serverConfigContextKey contextKey = "serverConfig"

func prepareServerConfig(command *cobra.Command, arguments []string) error {
	serverConfig, loadErr := LoadServerConfig()
	if loadErr != nil {
		return loadErr
	}
	existingContext := command.Context()
	if existingContext == nil {
		existingContext = context.Background()
	}
	command.SetContext(context.WithValue(existingContext, serverConfigContextKey, serverConfig))
	return nil
}

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

// LoadServerConfig validates flag and environment configuration once, at the
// boundary, into an explicit config struct.
func LoadServerConfig() (sessionkit.Config, error) {
	jwtSigningKey := viper.GetString("jwt_signing_key")
	if jwtSigningKey == "" {
		return sessionkit.Config{}, configError(configCodeMissingJWTSigningKey, "jwt_signing_key must be provided")
	}

	issuer := viper.GetString("issuer")
	if issuer == "" {
		return sessionkit.Config{}, configError(configCodeMissingIssuer, "issuer must be provided")
	}

	accessTTL := viper.GetDuration("access_ttl")
	if accessTTL <= 0 {
		return sessionkit.Config{}, configError(configCodeInvalidAccessTTL, "access_ttl must be greater than zero")
	}

	refreshTTL := viper.GetDuration("refresh_ttl")
	if refreshTTL <= 0 {
		return sessionkit.Config{}, configError(configCodeInvalidRefreshTTL, "refresh_ttl must be greater than zero")
	}

	return sessionkit.Config{
		Issuer:            issuer,
		AccessSigningKey:  []byte(jwtSigningKey),
		AccessTTL:         accessTTL,
		RefreshTTL:        refreshTTL,
		CookieDomain:      viper.GetString("cookie_domain"),
		AccessCookieName:  accessCookieName,
		RefreshCookieName: refreshCookieName,
	}, nil
}

func runServer(command *cobra.Command, arguments []string) error {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	commandContext := command.Context()
	var contextValue any
	if commandContext != nil {
		contextValue = commandContext.Value(serverConfigContextKey)
	}
	serverConfig, ok := contextValue.(sessionkit.Config)
	if !ok {
		return configError(configCodeUninitializedServerConf, "server configuration not prepared; PreRunE must execute before RunE")
	}

	listenAddr := viper.GetString("listen_addr")
	devInsecureHTTP := viper.GetBool("dev_insecure_http")
	databaseURL := viper.GetString("database_url")
	redisAddr := viper.GetString("redis_addr")
	cleanupInterval := viper.GetDuration("cleanup_interval")
	enableCORS := viper.GetBool("enable_cors")
	corsAllowedOrigins := viper.GetStringSlice("cors_allowed_origins")

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(zapLoggerMiddleware(logger))

	if enableCORS {
		corsMiddleware, corsErr := web.ConfigureCORS(logger, corsAllowedOrigins)
		if corsErr != nil {
			return corsErr
		}
		router.Use(corsMiddleware)
	}

	var refreshStore sessionkit.RefreshTokenStore
	switch {
	case strings.HasPrefix(databaseURL, "pgx://"):
		pool, poolErr := sessionkitpg.BuildPool(context.Background(), "postgres://"+strings.TrimPrefix(databaseURL, "pgx://"))
		if poolErr != nil {
			return poolErr
		}
		if schemaErr := sessionkitpg.EnsureSchema(context.Background(), pool); schemaErr != nil {
			return schemaErr
		}
		refreshStore = sessionkitpg.NewPostgresRefreshTokenStore(pool)
		logger.Info("using persistent refresh token store", zap.String("driver", "pgx"))
	case databaseURL != "":
		persistentStore, storeErr := sessionkit.NewDatabaseRefreshTokenStore(context.Background(), databaseURL)
		if storeErr != nil {
			return storeErr
		}
		refreshStore = persistentStore
		logger.Info("using persistent refresh token store", zap.String("driver", persistentStore.Driver()))
	default:
		refreshStore = sessionkit.NewMemoryRefreshTokenStore()
		logger.Info("using in-memory refresh token store")
	}

	denylist := buildDenylist(commandContext, logger, redisAddr)

	serverConfig.AllowInsecureHTTP = devInsecureHTTP
	serverConfig.SameSiteMode = http.SameSiteStrictMode
	if enableCORS {
		serverConfig.SameSiteMode = http.SameSiteNoneMode
	}

	principals := web.NewInMemoryPrincipals()
	metricsRecorder := sessionkit.NewCounterMetrics()

	manager, managerErr := sessionkit.NewManager(serverConfig, principals, refreshStore, denylist, sessionkit.NewSystemClock(), logger, metricsRecorder)
	if managerErr != nil {
		return managerErr
	}

	sessionkit.MountSessionRoutes(router, manager, principals)
	router.POST("/auth/register", web.HandleRegister(logger, principals, manager))

	admin := router.Group("/admin")
	admin.Use(sessionkit.RequireAccess(manager), sessionkit.RequireRole(sessionkit.RoleAdmin))
	admin.POST("/principals/:id/deactivate", web.HandleDeactivate(logger, principals, manager))

	server := &http.Server{
		Addr:              listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	if cleanupInterval > 0 {
		go runCleanupSweep(shutdownCtx, logger, manager, cleanupInterval)
	}

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		<-stopSignals
		shutdownCancel()
		graceCtx, graceCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", listenAddr))
	if err := serveHTTP(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", err)
	}
	return nil
}

// buildDenylist picks the ephemeral store for immediate access revocation.
// An unreachable Redis degrades to the no-op denylist: single-session access
// revocation becomes unavailable while rotation and refresh revocation keep
// working.
func buildDenylist(ctx context.Context, logger *zap.Logger, redisAddr string) sessionkit.Denylist {
	if redisAddr == "" {
		logger.Info("using in-memory access token denylist")
		return sessionkit.NewMemoryDenylist()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	client := redis.NewClient(&redis.Options{Addr: redisAddr})
	pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
	defer pingCancel()
	if pingErr := client.Ping(pingCtx).Err(); pingErr != nil {
		logger.Warn("redis unreachable; immediate access revocation disabled",
			zap.String("code", "denylist.degraded"),
			zap.String("addr", redisAddr),
			zap.Error(pingErr))
		return sessionkit.NewNoopDenylist()
	}
	logger.Info("using redis access token denylist", zap.String("addr", redisAddr))
	return sessionkit.NewRedisDenylist(client)
}

func runCleanupSweep(ctx context.Context, logger *zap.Logger, manager *sessionkit.Manager, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := manager.CleanupExpired(ctx)
			if err != nil {
				logger.Error("cleanup sweep failed", zap.Error(err))
				continue
			}
			logger.Info("cleanup sweep completed", zap.Int64("removed", removed))
		}
	}
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startTime := time.Now()
		contextGin.Next()
		duration := time.Since(startTime)
		logger.Info("http",
			zap.String("method", contextGin.Request.Method),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Int("status", contextGin.Writer.Status()),
			zap.String("ip", contextGin.ClientIP()),
			zap.Duration("elapsed", duration),
		)
	}
}
