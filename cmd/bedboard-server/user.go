package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ehr/bedboard/internal/domain/identity"
	"github.com/ehr/bedboard/internal/platform/auth"
	"github.com/ehr/bedboard/internal/platform/changefeed"
	"github.com/ehr/bedboard/internal/platform/db"
)

// passwordEnv supplies the password for "user create" when --password is
// not given, so it stays out of shell history.
const passwordEnv = "BEDBOARD_USER_PASSWORD"

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Create a user account (use --role admin to bootstrap the first administrator)",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := userInputFromFlags(cmd)
			if err != nil {
				return err
			}

			ctx := context.Background()
			deps, err := connect(ctx, false)
			if err != nil {
				return err
			}
			defer deps.Close()

			svc := identity.NewService(identity.NewRepoPG(deps.pool), db.NewTxRunner(deps.pool), nil, nil, changefeed.Discard)
			svc.SetLogger(deps.logger)

			u, err := svc.CreateUser(ctx, in)
			if err != nil {
				return err
			}
			fmt.Printf("Created %s user %s (%s).\n", u.Role, u.Email, u.ID)
			return nil
		},
	}
	create.Flags().String("email", "", "Account email (required)")
	create.Flags().String("name", "", "Display name (required)")
	create.Flags().String("password", "", "Password; defaults to $"+passwordEnv)
	create.Flags().String("role", auth.RoleUser, "Account role: admin or user")
	cmd.AddCommand(create)

	return cmd
}

func userInputFromFlags(cmd *cobra.Command) (identity.CreateUserInput, error) {
	email, _ := cmd.Flags().GetString("email")
	name, _ := cmd.Flags().GetString("name")
	password, _ := cmd.Flags().GetString("password")
	role, _ := cmd.Flags().GetString("role")

	if password == "" {
		password = os.Getenv(passwordEnv)
	}
	if password == "" {
		return identity.CreateUserInput{}, errors.New("a password is required: pass --password or set " + passwordEnv)
	}
	return identity.CreateUserInput{Email: email, Name: name, Password: password, Role: role}, nil
}
