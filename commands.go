package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	"github.com/onnwee/chatter/chat"
	"github.com/onnwee/chatter/config"
)

// withStore loads settings, opens the accounts store and runs fn with it.
func withStore(fn func(ctx context.Context, store config.Store) error) error {
	s, err := config.Load()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()
	store, closeStore, err := openStore(ctx, s)
	if err != nil {
		return err
	}
	defer closeStore()
	return fn(ctx, store)
}

func newAccountsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "accounts",
		Aliases: []string{"acct"},
		Short:   "Inspect and edit the chat accounts",
	}
	cmd.AddCommand(
		newAccountsInitCommand(),
		newAccountsShowCommand(),
		newAccountsSetCommand(config.CmdSetCredential, "Set the credential (API key, OAuth token, bot token) of an account"),
		newAccountsSetCommand(config.CmdSetChannel, "Set the channel or account identifier of an account", config.CmdSetAccountIdentifier),
	)
	return cmd
}

func newAccountsInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the placeholder accounts template if none exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(func(ctx context.Context, store config.Store) error {
				snap, err := store.Load(ctx)
				if err != nil {
					return err
				}
				if fs, ok := store.(*config.FileStore); ok {
					fmt.Fprintf(cmd.OutOrStdout(), "accounts file: %s\n", fs.Path())
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d accounts configured\n", snap.Count())
				return nil
			})
		},
	}
}

func newAccountsShowCommand() *cobra.Command {
	var reveal bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the accounts with credentials masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(func(ctx context.Context, store config.Store) error {
				snap, err := store.Load(ctx)
				if err != nil {
					return err
				}
				if !reveal {
					snap = snap.Redacted()
				}
				return printSnapshot(cmd.OutOrStdout(), snap)
			})
		},
	}
	cmd.Flags().BoolVar(&reveal, "reveal", false, "Print credentials unmasked")
	return cmd
}

func printSnapshot(w io.Writer, snap chat.Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(config.Document{Accounts: snap})
}

// newAccountsSetCommand builds "accounts <name> <platform> <value>".
func newAccountsSetCommand(name, short string, aliases ...string) *cobra.Command {
	var slot int

	cmd := &cobra.Command{
		Use:     name + " <platform> <value>",
		Aliases: aliases,
		Short:   short,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := config.Command{
				Name:     name,
				Platform: chat.Platform(args[0]),
				Slot:     slot,
				Value:    args[1],
			}
			return withStore(func(ctx context.Context, store config.Store) error {
				if _, err := config.Execute(ctx, store, c); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "updated %s\n", chat.Key(chat.Platform(strings.ToLower(args[0])), slot))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&slot, "slot", 0, "Account slot on the platform (set-channel on the current count appends a new account)")
	return cmd
}

func newReloadCommand() *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "reload",
		Short: "Ask a running server to reload its accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := config.Load()
			if err != nil {
				return err
			}
			if url == "" {
				url = localURL(s.HTTPAddr)
			}
			return requestReload(cmd.Context(), cmd.OutOrStdout(), url, s)
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "Base URL of the server (default derived from HTTP_ADDR)")
	return cmd
}

// localURL turns a listen address like ":8080" into a loopback base URL.
func localURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}

func requestReload(ctx context.Context, out io.Writer, baseURL string, s *config.Settings) error {
	if ctx == nil {
		ctx = context.Background()
	}
	client := resty.New().SetBaseURL(strings.TrimRight(baseURL, "/")).SetTimeout(10 * time.Second)
	req := client.R().SetContext(ctx)
	switch {
	case s.AdminToken != "":
		req.SetHeader("X-Admin-Token", s.AdminToken)
	case s.AdminUsername != "":
		req.SetBasicAuth(s.AdminUsername, s.AdminPassword)
	}

	var body struct {
		Status   string               `json:"status"`
		Adapters []chat.AdapterStatus `json:"adapters"`
		Error    string               `json:"error"`
	}
	resp, err := req.SetResult(&body).SetError(&body).Post("/admin/reload")
	if err != nil {
		return fmt.Errorf("reload request: %w", err)
	}
	if resp.IsError() {
		if body.Error != "" {
			return fmt.Errorf("reload failed (%d): %s", resp.StatusCode(), body.Error)
		}
		return fmt.Errorf("reload failed: %s", resp.Status())
	}
	for _, a := range body.Adapters {
		line := a.Key + " " + a.State
		if a.Reason != "" {
			line += " (" + a.Reason + ")"
		}
		fmt.Fprintln(out, line)
	}
	return nil
}
