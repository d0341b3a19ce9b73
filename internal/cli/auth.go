package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"finboard/internal/log"
)

func newLoginCmd(r *runner) *cobra.Command {
	var email, access, refresh string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and remember the session",
		Long: `Sign in with your email and password, or install an existing token pair.

The password is read from the terminal without echo, or from the first line
of standard input when it is not a terminal.

Examples:
  finboard login --email ada@example.com
  finboard login --access <token> --refresh <token>`,
		RunE: r.run(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app := r.app

			if access == "" && refresh == "" {
				if email == "" {
					return errors.New("--email is required (or pass --access and --refresh)")
				}
				fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
				password, err := readPassword(r.opts.Stdin)
				fmt.Fprintln(cmd.ErrOrStderr())
				if err != nil {
					return fmt.Errorf("read password: %w", err)
				}
				tokens, err := app.client.ObtainTokens(ctx, email, strings.TrimSpace(password))
				if err != nil {
					return fmt.Errorf("login failed: %w", err)
				}
				access, refresh = tokens.Access, tokens.Refresh
			}

			if err := app.session.Login(ctx, access, refresh); err != nil {
				return err
			}
			st := app.session.State()
			if !st.Authenticated() {
				if st.AccessToken != "" {
					return errors.New("login incomplete: the profile did not load in time, try again")
				}
				return errors.New("login failed: the token was rejected")
			}

			app.logger.Info("Logged in", log.FieldOperation, log.OpLogin, log.FieldUserID, st.User.ID)
			printf(cmd, "Logged in as %s\n", displayName(st.User.Name, st.User.Email))
			return nil
		}),
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&access, "access", "", "access token to install instead of signing in")
	cmd.Flags().StringVar(&refresh, "refresh", "", "refresh token to install with --access")
	cmd.MarkFlagsRequiredTogether("access", "refresh")
	return cmd
}

func newLogoutCmd(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: r.run(func(cmd *cobra.Command, args []string) error {
			r.app.session.Logout()
			printf(cmd, "Logged out\n")
			return nil
		}),
	}
}

func newWhoamiCmd(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: r.run(func(cmd *cobra.Command, args []string) error {
			st, err := r.app.requireSession(cmd.Context())
			if err != nil {
				return err
			}
			u := st.User
			printf(cmd, "Name:     %s\n", u.Name)
			printf(cmd, "Email:    %s\n", u.Email)
			printf(cmd, "Username: %s\n", u.Username)
			printf(cmd, "Currency: %s\n", u.Currency)
			printf(cmd, "Language: %s\n", u.Language)
			if u.MonthlyIncome != nil {
				freq := "monthly"
				if u.IncomeFrequency != nil && *u.IncomeFrequency != "" {
					freq = *u.IncomeFrequency
				}
				printf(cmd, "Income:   %.2f %s (%s)\n", *u.MonthlyIncome, u.Currency, freq)
			}
			return nil
		}),
	}
}

func displayName(name, email string) string {
	if name != "" {
		return name
	}
	return email
}
