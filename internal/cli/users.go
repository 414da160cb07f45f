package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"proposaldesk/api/internal/authpw"
	"proposaldesk/api/internal/store"
)

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password [password]",
	Short: "Print a bcrypt hash for a password",
	Long: `Prints a bcrypt hash suitable for the users.password_hash column.
The password is read from stdin when no argument is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := passwordArg(cmd.InOrStdin(), args)
		if err != nil {
			return err
		}
		hash, err := authpw.HashPassword(password)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

var createUserCmd = &cobra.Command{
	Use:   "create-user <user-id> <role>",
	Short: "Create or replace a login",
	Long: `Creates a login for an agent, supervisor, admin or superadmin. The
password is read from stdin.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		name, err := cmd.Flags().GetString("name")
		if err != nil {
			return err
		}
		password, err := passwordArg(cmd.InOrStdin(), nil)
		if err != nil {
			return err
		}
		ctx := context.Background()

		db, err := store.Open(ctx, cfg.DatabaseURL, store.PoolOptions{MaxOpenConns: 2})
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()

		user, err := authpw.NewService(store.NewPostgresStore(db)).CreateUser(ctx, authpw.CreateUserRequest{
			UserID:      args[0],
			DisplayName: name,
			Role:        args[1],
			Password:    password,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\n", user.UserID, user.Role)
		return nil
	},
}

func init() {
	createUserCmd.Flags().String("name", "", "Display name (default: the user id)")
}

func passwordArg(in io.Reader, args []string) (string, error) {
	if len(args) > 0 {
		return requirePassword(args[0])
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return requirePassword(strings.TrimRight(line, "\r\n"))
}

func requirePassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password is required")
	}
	return password, nil
}
