package main

import (
	"context"
	"fmt"
	"io"

	"github.com/phrazzld/scry-research/internal/config"
	"github.com/phrazzld/scry-research/internal/service/auth"
)

// runToken prints a signed bearer token whose subject is ownerID.
func runToken(ctx context.Context, configPath, ownerID string, stdout io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	jwtService, err := auth.NewJWTService(cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to initialize JWT service: %w", err)
	}

	token, err := jwtService.GenerateToken(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}

	_, err = fmt.Fprintln(stdout, token)
	return err
}
