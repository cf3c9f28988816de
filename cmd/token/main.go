package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/angelmondragon/festpos/internal/users"
	"github.com/angelmondragon/festpos/pkg/auth"
	"github.com/angelmondragon/festpos/pkg/config"
	"github.com/angelmondragon/festpos/pkg/db"
	"github.com/angelmondragon/festpos/pkg/logger"
)

// token mints a register bearer token for an operator and, with -verify,
// approves that operator for sales.
func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "token", Output: os.Stderr})

	_ = godotenv.Load()

	userFlag := flag.String("user", "", "operator user id (uuid); a new id is generated when empty")
	name := flag.String("name", "", "operator display name")
	verify := flag.Bool("verify", false, "register the operator and mark them verified")
	flag.Parse()

	userID := uuid.New()
	if *userFlag != "" {
		parsed, err := uuid.Parse(*userFlag)
		requireResource(ctx, logg, "user id", err)
		userID = parsed
	}
	ctx = logg.WithUserID(ctx, userID.String())

	if *verify {
		cfg, err := config.Load()
		requireResource(ctx, logg, "config", err)
		dbClient, err := db.New(ctx, cfg.DB, logg)
		requireResource(ctx, logg, "database", err)
		defer dbClient.Close()

		svc, err := users.NewService(users.NewRepository(dbClient.DB()))
		requireResource(ctx, logg, "user service", err)
		_, err = svc.Me(ctx, userID, *name)
		requireResource(ctx, logg, "register operator", err)
		requireResource(ctx, logg, "verify operator", svc.SetVerified(ctx, userID, true))
		logg.Info(ctx, "operator verified")
	}

	jwtCfg, err := config.LoadJWT()
	requireResource(ctx, logg, "jwt config", err)

	token, err := auth.MintAccessToken(jwtCfg, time.Now().UTC(), auth.AccessTokenPayload{
		UserID:      userID,
		DisplayName: *name,
	})
	requireResource(ctx, logg, "mint token", err)
	fmt.Println(token)
}

func requireResource(ctx context.Context, logg *logger.Logger, name string, err error) {
	if err == nil {
		return
	}
	logg.Error(logg.WithField(ctx, "resource", name), "token command failed", err)
	os.Exit(1)
}
