// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"fmt"
	"log/slog"

	"codeberg.org/oliverandrich/creatorhub/internal/repository"
	"codeberg.org/oliverandrich/creatorhub/internal/services/auth"
	"github.com/urfave/cli/v3"
	"github.com/vinovest/sqlx"
)

func userCommand() *cli.Command {
	return &cli.Command{
		Name:  "user",
		Usage: "Manage accounts",
		Commands: []*cli.Command{
			{
				Name:  "create-admin",
				Usage: "Create a verified admin account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "username", Required: true},
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "password", Required: true, Sources: cli.EnvVars("ADMIN_PASSWORD")},
				},
				Action: withDB(func(ctx context.Context, cmd *cli.Command, db *sqlx.DB) error {
					user, err := accounts(db).CreateAdmin(ctx, cmd.String("username"), cmd.String("email"), cmd.String("password"))
					if err != nil {
						return err
					}
					slog.Info("admin created", "id", user.ID, "email", user.Email)
					return nil
				}),
			},
			{
				Name:  "approve",
				Usage: "Mark an account as manually verified",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Required: true},
				},
				Action: withDB(func(ctx context.Context, cmd *cli.Command, db *sqlx.DB) error {
					user, err := accounts(db).Approve(ctx, cmd.String("email"))
					if err != nil {
						return err
					}
					slog.Info("user approved", "id", user.ID, "email", user.Email)
					return nil
				}),
			},
			{
				Name:  "count",
				Usage: "Print the number of accounts",
				Action: withDB(func(ctx context.Context, cmd *cli.Command, db *sqlx.DB) error {
					n, err := repository.New(db).CountUsers(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.Root().Writer, n)
					return nil
				}),
			},
		},
	}
}

// accounts returns an auth service for admin tooling. It sends no mail and
// issues no tokens.
func accounts(db *sqlx.DB) *auth.Service {
	repo := repository.New(db)
	return auth.NewService(repo, repo, nil, nil, auth.Config{})
}
