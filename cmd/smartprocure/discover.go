package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/smartprocure/backend/internal/domain"
	"github.com/smartprocure/backend/internal/intake"
	"github.com/smartprocure/backend/internal/logger"
	"github.com/smartprocure/backend/internal/usecase"
)

const (
	descriptionPreviewLength = 60
	tableWidth               = 160
)

type discoverOptions struct {
	requirements string
	target       int
	timeout      time.Duration
	top          int
}

func newDiscoverCommand(root *rootOptions) *cobra.Command {
	opts := &discoverOptions{}

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Find and rank suppliers for a requirements document",
		Long: `Discover normalizes a requirements document, searches the supplier marketplace,
ranks the suppliers found and saves the shortlist as a JSON artifact.

Examples:
  # Discover suppliers for a YAML requirements file
  smartprocure discover -r requirements.yaml

  # Collect fewer listings and stop after two minutes
  smartprocure discover -r requirements.json --target 20 --timeout 2m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiscover(cmd, root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.requirements, "requirements", "r", "", "requirements document (YAML or JSON)")
	cmd.Flags().IntVar(&opts.target, "target", 0, "number of unique listings to collect (default from config)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "overall run timeout (default from config)")
	cmd.Flags().IntVar(&opts.top, "top", 10, "number of suppliers to print")
	_ = cmd.MarkFlagRequired("requirements")

	return cmd
}

func runDiscover(cmd *cobra.Command, root *rootOptions, opts *discoverOptions) error {
	cfg, log, err := root.load()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if opts.target > 0 {
		cfg.Discovery.TargetCount = opts.target
	}
	if opts.timeout > 0 {
		cfg.Discovery.RunTimeout = opts.timeout
	}

	fsys := afero.NewOsFs()
	doc, err := intake.Load(fsys, opts.requirements)
	if err != nil {
		return err
	}

	// Ctrl-C ends the fetch early; the listings collected so far are still ranked and saved
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := newServices(ctx, cfg, fsys, log)
	if err != nil {
		return err
	}
	defer svc.Close()

	result, err := svc.discovery.Run(ctx, doc)
	if err != nil {
		var stageErr *domain.StageError
		if errors.As(err, &stageErr) {
			log.Error("Discovery failed",
				logger.String("stage", stageErr.Stage),
				logger.Int("queries_attempted", stageErr.QueriesAttempted),
				logger.Int("listings_fetched", stageErr.ListingsFetched),
			)
		}
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("discovery interrupted before any listing arrived: %w", err)
		}
		return err
	}

	renderShortlist(cmd.OutOrStdout(), result, opts.top)
	return nil
}

// renderShortlist prints the top suppliers of a discovery run as a table
func renderShortlist(w io.Writer, result *usecase.DiscoveryResult, top int) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMax: 4},
		{Number: 3, WidthMax: 40},
		{Number: 6, WidthMax: tableWidth / 3},
	})
	t.AppendHeader(table.Row{"#", "Score", "Supplier", "Contact", "Location", "Description"})

	suppliers := result.Shortlist.Suppliers
	if top > 0 && len(suppliers) > top {
		suppliers = suppliers[:top]
	}
	for i, s := range suppliers {
		t.AppendRow(table.Row{
			i + 1,
			fmt.Sprintf("%.1f", s.Score),
			s.Name,
			contactCell(s.Contact),
			orDash(s.Location),
			orDash(preview(s.Description, descriptionPreviewLength)),
		})
	}

	footer := fmt.Sprintf("Queries: %d", len(result.Queries))
	if result.Partial {
		footer += " (partial run)"
	}
	t.AppendFooter(table.Row{"Total", result.Shortlist.Len(), footer})

	product := ""
	if result.Requirements != nil {
		product = result.Requirements.ProductType
	}
	fmt.Fprintf(w, "\nSupplier shortlist for %q:\n", product)
	t.Render()
	fmt.Fprintf(w, "Saved to %s\n", result.ArtifactPath)
}

func contactCell(c domain.Contact) string {
	parts := make([]string, 0, 2)
	if c.HasPhone() {
		parts = append(parts, c.Phone)
	}
	if c.HasEmail() {
		parts = append(parts, c.Email)
	}
	return strings.Join(parts, "\n")
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
