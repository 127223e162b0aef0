// Command docklitectl runs the compose rewrite offline: label injection, port
// detection, linting and slug generation, without a server or a runtime.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/artpar/docklite/internal/core/compose"
	"github.com/artpar/docklite/internal/core/domain"
	"github.com/artpar/docklite/internal/core/traefik"
)

const (
	exitSuccess = 0
	exitError   = 1
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(exitError)
	}
	os.Exit(exitSuccess)
}

// =============================================================================
// Commands
// =============================================================================

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "docklitectl",
		Short:         "Inspect and rewrite compose files the way docklite does",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newInjectCmd(), newPortCmd(), newLintCmd(), newSlugCmd())
	return root
}

func newInjectCmd() *cobra.Command {
	var (
		route traefik.Route
		opts  traefik.InjectOptions
	)
	cmd := &cobra.Command{
		Use:   "inject <file|->",
		Short: "Add proxy routing labels and network to a compose file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			if route.Slug == "" {
				route.Slug = domain.GenerateSlug(route.Domain, 0)
			}
			out, err := traefik.Inject(content, route, opts)
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), out)
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&route.Domain, "domain", "", "public hostname to route")
	f.StringVar(&route.Slug, "slug", "", "routing key (derived from --domain when empty)")
	f.IntVar(&opts.ForcedPort, "port", 0, "internal port, overriding detection")
	f.StringVar(&opts.Network, "network", traefik.DefaultNetwork, "external proxy network")
	f.StringVar(&opts.Entrypoint, "entrypoint", traefik.DefaultEntrypoint, "HTTP entrypoint")
	f.BoolVar(&opts.EnableTLS, "tls", false, "add an HTTPS router")
	f.StringVar(&opts.SecureEntrypoint, "secure-entrypoint", traefik.DefaultSecureEntrypoint, "HTTPS entrypoint")
	f.StringVar(&opts.CertResolver, "cert-resolver", traefik.DefaultCertResolver, "certificate resolver")
	_ = cmd.MarkFlagRequired("domain")
	return cmd
}

func newPortCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "port <file|->",
		Short: "Print the internal port docklite would route to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			doc, err := compose.Parse(content)
			if err != nil {
				return err
			}
			if _, err := doc.FirstService(); err != nil {
				return err
			}
			res := compose.DetectInternalPort(doc)
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d (%s)\n", res.Port, res.Source)
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func newLintCmd() *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "lint <file|->",
		Short: "Check that a compose file can be rewritten",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			if err := compose.Validate(content); err != nil {
				return err
			}
			if !strict {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "ok")
				return err
			}
			summary, err := compose.Lint(content)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), summary)
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "run the full compose loader and print a summary")
	return cmd
}

func newSlugCmd() *cobra.Command {
	var seq int64
	cmd := &cobra.Command{
		Use:   "slug <domain>",
		Short: "Print the project slug for a domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := domain.ValidateDomain(args[0]); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), domain.GenerateSlug(args[0], seq))
			return err
		},
	}
	cmd.Flags().Int64Var(&seq, "seq", 0, "deployment sequence number appended to the slug")
	return cmd
}

// =============================================================================
// Helpers
// =============================================================================

// readInput reads a file, or stdin when name is "-".
func readInput(cmd *cobra.Command, name string) (string, error) {
	if name == "-" {
		b, err := io.ReadAll(cmd.InOrStdin())
		return string(b), err
	}
	b, err := os.ReadFile(name)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
