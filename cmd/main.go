package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/filmgrid/auth-service/internal/api"
	"github.com/filmgrid/auth-service/internal/controller"
	"github.com/filmgrid/auth-service/internal/migrations"
	"github.com/filmgrid/auth-service/internal/service"
	"github.com/filmgrid/auth-service/internal/storage/postgres"
	"github.com/filmgrid/auth-service/internal/storage/redis"
	"github.com/filmgrid/auth-service/internal/util"

	_ "github.com/lib/pq"
)

func main() {
	ctx := context.Background()
	logger := util.NewZapLogger()

	db, dbCleanup, err := util.NewDBConnection(logger)
	if err != nil {
		logger.Fatal(zap.Error(err))
	}
	if err := migrations.RunMigrations(db, logger, "./internal/migrations"); err != nil {
		logger.Fatal(zap.Error(err))
	}

	redisClient, redisCleanup, err := util.NewRedisClient(logger, util.NewRedisConfig())
	if err != nil {
		logger.Fatal(zap.Error(err))
	}

	storage := postgres.NewStorage(db)
	cleanupFuncs := []func(){dbCleanup, redisCleanup}

	tokenConfig := util.NewTokenConfig()
	ticketStore := redis.NewTicketStore(redisClient)
	accessCache := redis.NewAccessTokenCache(redisClient)

	passwordService := service.NewPasswordService()
	totpService := service.NewTOTPService(util.GetTOTPIssuerName())
	ticketService := service.NewTicketService(ticketStore, tokenConfig.MfaTicketTTL, tokenConfig.PasswordTicketTTL)
	tokenService := service.NewTokenService(tokenConfig, storage, accessCache, logger)
	refreshService := service.NewRefreshTokenService(storage, tokenService, tokenConfig)
	alertWebhook := service.NewSecurityAlertWebhook(logger, util.GetSecurityWebhookURL())
	authService := service.NewAuthService(storage, ticketService, passwordService, totpService, tokenService, refreshService, alertWebhook, logger)

	controller := controller.NewController(logger, authService)

	apiServer := api.NewAPI(controller, tokenService, util.NewServerConfig(), logger, cleanupFuncs)
	apiServer.Run(ctx)
}
