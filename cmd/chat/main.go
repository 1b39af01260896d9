package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Rrens/streamchat/internal/config"
	"github.com/Rrens/streamchat/internal/domain"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configPath string
		a          *app
	)

	root := &cobra.Command{
		Use:           "chat",
		Short:         "Chat with the streamchat backend from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var (
				cfg *config.Config
				err error
			)
			if configPath != "" {
				cfg, err = config.LoadFile(configPath)
			} else {
				cfg, err = config.Load()
			}
			if err != nil {
				return err
			}

			a, err = newApp(cmd.Context(), cfg, color.Output)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a != nil {
				a.Close()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := a.requireUser(cmd.Context())
			if err != nil {
				return err
			}
			return a.repl(cmd.Context(), user, cmd.InOrStdin())
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $CONFIG_PATH or ./configs/config.yaml)")

	appFn := func() *app { return a }
	root.AddCommand(
		newRegisterCommand(appFn),
		newLoginCommand(appFn),
		newLogoutCommand(appFn),
		newConversationsCommand(appFn),
		newSendCommand(appFn),
	)
	return root
}

func newRegisterCommand(appFn func() *app) *cobra.Command {
	var input domain.UserCreate

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			if input.Password == "" {
				password, err := prompt(cmd.InOrStdin(), cmd.OutOrStdout(), "Password: ")
				if err != nil {
					return err
				}
				input.Password = password
			}

			user, err := a.auth.Register(cmd.Context(), input)
			if err != nil {
				return fmt.Errorf("%s", a.tr.Describe(err))
			}
			color.Green("Registered %s, now run `chat login`\n", user.Username)
			return nil
		},
	}
	cmd.Flags().StringVarP(&input.Username, "username", "u", "", "user name")
	cmd.Flags().StringVarP(&input.Email, "email", "e", "", "email address")
	cmd.Flags().StringVarP(&input.Password, "password", "p", "", "password (prompted when empty)")
	cmd.MarkFlagRequired("username")
	cmd.MarkFlagRequired("email")
	return cmd
}

func newLoginCommand(appFn func() *app) *cobra.Command {
	var input domain.UserLogin

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and remember the user for later runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			if input.Password == "" {
				password, err := prompt(cmd.InOrStdin(), cmd.OutOrStdout(), "Password: ")
				if err != nil {
					return err
				}
				input.Password = password
			}

			user, err := a.auth.Login(cmd.Context(), input)
			if err != nil {
				return fmt.Errorf("%s", a.tr.Describe(err))
			}
			color.Green("Logged in as %s\n", user.Username)
			return nil
		},
	}
	cmd.Flags().StringVarP(&input.Username, "username", "u", "", "user name")
	cmd.Flags().StringVarP(&input.Password, "password", "p", "", "password (prompted when empty)")
	cmd.MarkFlagRequired("username")
	return cmd
}

func newLogoutCommand(appFn func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the logged-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := appFn().auth.Logout(cmd.Context()); err != nil {
				return err
			}
			color.Green("Logged out\n")
			return nil
		},
	}
}

func newConversationsCommand(appFn func() *app) *cobra.Command {
	return &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"ls"},
		Short:   "List your conversations",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			if _, err := a.requireUser(cmd.Context()); err != nil {
				return err
			}
			active, _ := a.conversations.Active()
			a.render.Conversations(a.conversations.Conversations(), active.ID)
			return nil
		},
	}
}

func newSendCommand(appFn func() *app) *cobra.Command {
	var conversationID string

	cmd := &cobra.Command{
		Use:   "send <message...>",
		Short: "Send one message and stream the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			user, err := a.requireUser(cmd.Context())
			if err != nil {
				return err
			}
			if conversationID != "" {
				if err := a.conversations.Select(cmd.Context(), domain.ID(conversationID)); err != nil {
					return fmt.Errorf("%s", a.tr.Describe(err))
				}
				active, _ := a.conversations.Active()
				a.render.SetActive(active.ID)
			}

			a.send(cmd.Context(), user, strings.Join(args, " "))
			return nil
		},
	}
	cmd.Flags().StringVarP(&conversationID, "conversation", "c", "", "conversation id (default: the first one)")
	return cmd
}

func prompt(in io.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", io.ErrUnexpectedEOF
	}
	return strings.TrimSpace(scanner.Text()), nil
}
