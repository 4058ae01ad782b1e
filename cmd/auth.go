package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/otherjamesbrown/meetiq/credentials"
)

// AuthCommandDeps holds the dependencies for auth commands.
type AuthCommandDeps struct {
	NewStore func() (*credentials.Store, error)

	// ReadSecret reads a token without echo. Nil reads a line from the
	// command's input.
	ReadSecret func() (string, error)
}

// DefaultAuthDeps returns the default dependencies for production use.
func DefaultAuthDeps() *AuthCommandDeps {
	return &AuthCommandDeps{
		NewStore:   credentials.NewStore,
		ReadSecret: readPasswordFromTerminal,
	}
}

// NewAuthCommand creates the auth command group.
func NewAuthCommand(deps *AuthCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultAuthDeps()
	}

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the semantic classifier token",
		Long: `Manage the bearer token sent to the semantic classifier service.

The token is stored encrypted in ~/.meetiq/credentials.yaml. The encryption
key comes from MEETIQ_ENCRYPTION_KEY, a key derived from MEETIQ_PASSPHRASE, or
the system keyring, in that order.

MEETIQ_SEMANTIC_TOKEN overrides the stored token.`,
	}

	cmd.AddCommand(newAuthSetTokenCommand(deps))
	cmd.AddCommand(newAuthClearTokenCommand(deps))
	cmd.AddCommand(newAuthStatusCommand(deps))
	return cmd
}

func newAuthSetTokenCommand(deps *AuthCommandDeps) *cobra.Command {
	var (
		token   string
		address string
		expires time.Duration
	)
	cmd := &cobra.Command{
		Use:   "set-token",
		Short: "Store the semantic classifier token",
		Example: `  # Prompt for the token
  meetiq auth set-token --address classifier.internal:443

  # Non-interactive, expiring in 30 days
  meetiq auth set-token --token "$TOKEN" --expires 720h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				fmt.Fprint(cmd.ErrOrStderr(), "Token: ")
				var err error
				token, err = readSecret(deps, cmd.InOrStdin())
				fmt.Fprintln(cmd.ErrOrStderr())
				if err != nil {
					return fmt.Errorf("reading token: %w", err)
				}
			}
			token = strings.TrimSpace(token)
			if token == "" {
				return errors.New("token cannot be empty")
			}
			if expires < 0 {
				return errors.New("--expires must not be negative")
			}

			store, err := deps.NewStore()
			if err != nil {
				return fmt.Errorf("initializing credential store: %w", err)
			}
			creds := &credentials.Credentials{Token: token, Address: address}
			if expires > 0 {
				creds.ExpiresAt = time.Now().Add(expires)
			}
			if err := store.Save(creds); err != nil {
				return fmt.Errorf("saving credentials: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Token saved.")
			fmt.Fprintf(out, "  Token:   %s\n", credentials.MaskToken(token))
			if address != "" {
				fmt.Fprintf(out, "  Address: %s\n", address)
			}
			fmt.Fprintf(out, "  Expires: %s\n", credentials.FormatExpiry(creds.ExpiresAt))
			fmt.Fprintf(out, "  Key:     %s\n", store.KeyDescription())
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "Token value (prompted when omitted)")
	cmd.Flags().StringVar(&address, "address", "", "Classifier address used when semantic.address is unset")
	cmd.Flags().DurationVar(&expires, "expires", 0, "Token lifetime (e.g. 720h); 0 never expires")
	return cmd
}

func newAuthClearTokenCommand(deps *AuthCommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-token",
		Short: "Remove the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := deps.NewStore()
			if err != nil {
				return fmt.Errorf("initializing credential store: %w", err)
			}
			if !store.Exists() {
				fmt.Fprintln(cmd.OutOrStdout(), "No stored token.")
				return nil
			}
			if err := store.Delete(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Stored token removed.")
			if os.Getenv(credentials.TokenEnvVar) != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Note: %s is still set and will be used.\n", credentials.TokenEnvVar)
			}
			return nil
		},
	}
}

func newAuthStatusCommand(deps *AuthCommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which token will be used",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			store, err := deps.NewStore()
			if err != nil {
				return fmt.Errorf("initializing credential store: %w", err)
			}

			creds, err := store.GetActiveCredential()
			switch {
			case errors.Is(err, credentials.ErrNoCredentials):
				fmt.Fprintln(out, "Status: no token")
				fmt.Fprintln(out, "  Run 'meetiq auth set-token' or set "+credentials.TokenEnvVar+".")
				return nil
			case errors.Is(err, credentials.ErrExpiredToken):
				fmt.Fprintln(out, "Status: token expired")
				fmt.Fprintln(out, "  Run 'meetiq auth set-token' to replace it.")
				return nil
			case err != nil:
				return fmt.Errorf("loading credentials: %w", err)
			}

			fmt.Fprintln(out, "Status: token configured")
			fmt.Fprintf(out, "  Source:  %s\n", creds.Source)
			fmt.Fprintf(out, "  Token:   %s\n", credentials.MaskToken(creds.Token))
			if creds.Address != "" {
				fmt.Fprintf(out, "  Address: %s\n", creds.Address)
			}
			if creds.Source != credentials.TokenEnvVar {
				fmt.Fprintf(out, "  Expires: %s\n", credentials.FormatExpiry(creds.ExpiresAt))
				fmt.Fprintf(out, "  Key:     %s\n", store.KeyDescription())
			}
			return nil
		},
	}
}

func readSecret(deps *AuthCommandDeps, in io.Reader) (string, error) {
	if deps.ReadSecret != nil {
		return deps.ReadSecret()
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// readPasswordFromTerminal reads without echo when stdin is a terminal and
// falls back to a plain line read for piped input.
func readPasswordFromTerminal() (string, error) {
	fd := int(syscall.Stdin)
	if !term.IsTerminal(fd) {
		return readSecret(&AuthCommandDeps{}, os.Stdin)
	}
	b, err := term.ReadPassword(fd)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
