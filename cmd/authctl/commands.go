package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/MrEthical07/authsession"
	"github.com/spf13/cobra"
)

func whoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctrl, err := a.mount(cmd.Context(), authsession.MountOptions{})
			if err != nil {
				return err
			}
			defer ctrl.Close()

			state := ctrl.State()
			switch {
			case state.User != nil:
				printUser(a.out, state.User)
				if !state.User.EmailVerified() {
					fmt.Fprintln(a.out, "(email not verified)")
				}
				return nil
			case state.Err != nil:
				return fmt.Errorf("not signed in: %w", state.Err)
			default:
				return fmt.Errorf("not signed in")
			}
		},
	}
}

func loginCmd(a *app) *cobra.Command {
	var req authsession.LoginRequest

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if req.Password == "" {
				req.Password = os.Getenv("AUTHCTL_PASSWORD")
			}
			ctrl, err := a.mount(cmd.Context(), authsession.MountOptions{Policy: authsession.PolicyGuest})
			if err != nil {
				return err
			}
			defer ctrl.Close()

			res, err := ctrl.Login(cmd.Context(), req)
			if err != nil {
				return err
			}
			if err := a.report(res, ""); err != nil {
				return err
			}
			if user := ctrl.Session(); user != nil {
				fmt.Fprintf(a.out, "signed in as %s\n", user.String("email"))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Email, "email", "", "account email")
	cmd.Flags().StringVar(&req.Password, "password", "", "account password (or AUTHCTL_PASSWORD)")
	cmd.Flags().BoolVar(&req.Remember, "remember", false, "ask for a long-lived session")
	return cmd
}

func registerCmd(a *app) *cobra.Command {
	var (
		req    authsession.RegisterRequest
		fields []string
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			extra, err := parseFields(fields)
			if err != nil {
				return err
			}
			req.Extra = extra
			if req.PasswordConfirmation == "" {
				req.PasswordConfirmation = req.Password
			}

			ctrl, err := a.mount(cmd.Context(), authsession.MountOptions{Policy: authsession.PolicyGuest})
			if err != nil {
				return err
			}
			defer ctrl.Close()

			res, err := ctrl.Register(cmd.Context(), req)
			if err != nil {
				return err
			}
			if err := a.report(res, ""); err != nil {
				return err
			}
			if user := ctrl.Session(); user != nil {
				fmt.Fprintf(a.out, "registered %s\n", user.String("email"))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Name, "name", "", "display name")
	cmd.Flags().StringVar(&req.Email, "email", "", "account email")
	cmd.Flags().StringVar(&req.Password, "password", "", "password")
	cmd.Flags().StringVar(&req.PasswordConfirmation, "password-confirmation", "", "password confirmation (defaults to --password)")
	cmd.Flags().StringArrayVar(&fields, "field", nil, "extra registration field as key=value (repeatable)")
	return cmd
}

func forgotPasswordCmd(a *app) *cobra.Command {
	var req authsession.ForgotPasswordRequest

	cmd := &cobra.Command{
		Use:   "forgot-password",
		Short: "Request a password reset link",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctrl, err := a.mount(cmd.Context(), authsession.MountOptions{Policy: authsession.PolicyGuest})
			if err != nil {
				return err
			}
			defer ctrl.Close()

			res, err := ctrl.ForgotPassword(cmd.Context(), req)
			if err != nil {
				return err
			}
			return a.report(res, "reset link requested")
		},
	}

	cmd.Flags().StringVar(&req.Email, "email", "", "account email")
	return cmd
}

func resetPasswordCmd(a *app) *cobra.Command {
	var req authsession.ResetPasswordRequest

	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Set a new password with a reset token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if req.PasswordConfirmation == "" {
				req.PasswordConfirmation = req.Password
			}
			ctrl, err := a.mount(cmd.Context(), authsession.MountOptions{Policy: authsession.PolicyGuest})
			if err != nil {
				return err
			}
			defer ctrl.Close()

			res, err := ctrl.ResetPassword(cmd.Context(), req)
			if err != nil {
				return err
			}
			return a.report(res, "")
		},
	}

	cmd.Flags().StringVar(&req.Token, "token", "", "reset token from the email link")
	cmd.Flags().StringVar(&req.Email, "email", "", "account email")
	cmd.Flags().StringVar(&req.Password, "password", "", "new password")
	cmd.Flags().StringVar(&req.PasswordConfirmation, "password-confirmation", "", "password confirmation (defaults to --password)")
	return cmd
}

func resendVerificationCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resend-verification",
		Short: "Send the email verification link again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctrl, err := a.mount(cmd.Context(), authsession.MountOptions{Policy: authsession.PolicyAuth})
			if err != nil {
				return err
			}
			defer ctrl.Close()
			if ctrl.Session() == nil {
				return fmt.Errorf("not signed in")
			}

			res, err := ctrl.ResendEmailVerification(cmd.Context())
			if err != nil {
				return err
			}
			return a.report(res, "verification link sent")
		},
	}
}

func logoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctrl, err := a.mount(cmd.Context(), authsession.MountOptions{})
			if err != nil {
				return err
			}
			defer ctrl.Close()
			return ctrl.Logout(cmd.Context())
		},
	}
}

func versionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			if short {
				fmt.Fprintln(out, version)
				return
			}
			fmt.Fprintf(out, "Version:    %s\n", version)
			fmt.Fprintf(out, "Commit:     %s\n", commit)
			fmt.Fprintf(out, "Built:      %s\n", date)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only version number")
	return cmd
}

func parseFields(raw []string) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(raw))
	for _, kv := range raw {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --field %q, want key=value", kv)
		}
		switch v {
		case "true":
			out[k] = true
		case "false":
			out[k] = false
		default:
			out[k] = v
		}
	}
	return out, nil
}
