package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/smartprocure/backend/internal/infrastructure/storage"
	"github.com/smartprocure/backend/internal/intake"
	"github.com/smartprocure/backend/internal/logger"
	"github.com/smartprocure/backend/internal/outreach"
	"github.com/smartprocure/backend/internal/usecase"
)

type outreachOptions struct {
	live         bool
	requirements string
}

func newOutreachCommand(root *rootOptions) *cobra.Command {
	opts := &outreachOptions{}

	cmd := &cobra.Command{
		Use:   "outreach [artifact]",
		Short: "Send quotation requests to the suppliers of a shortlist",
		Long: `Outreach emails and texts every supplier of a saved shortlist. Without an artifact
argument the newest shortlist in the storage directory is used.

Messages are only logged unless --live is given (or outreach.live is set in the config).

Examples:
  # Preview the messages for the latest shortlist
  smartprocure outreach

  # Contact the suppliers of a specific shortlist
  smartprocure outreach data/shortlist_20260301T100000Z_1a2b3c4d.json --live`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOutreach(cmd, root, opts, args)
		},
	}

	cmd.Flags().BoolVar(&opts.live, "live", false, "send real emails and text messages")
	cmd.Flags().StringVarP(&opts.requirements, "requirements", "r", "",
		"requirements document used for the message content instead of the one stored in the artifact")
	return cmd
}

func runOutreach(cmd *cobra.Command, root *rootOptions, opts *outreachOptions, args []string) error {
	cfg, log, err := root.load()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fsys := afero.NewOsFs()
	shortlists := storage.NewShortlistWriter(fsys, cfg.Storage.Dir, log)

	path := ""
	if len(args) == 1 {
		path = args[0]
	} else if path, err = shortlists.Latest(ctx); err != nil {
		return fmt.Errorf("no shortlist in %s: %w", shortlists.Dir(), err)
	}

	artifact, err := shortlists.Load(ctx, path)
	if err != nil {
		return err
	}

	if opts.requirements != "" {
		doc, err := intake.Load(fsys, opts.requirements)
		if err != nil {
			return err
		}
		spec, err := usecase.NormalizeRequirements(doc)
		if err != nil {
			return err
		}
		artifact.Requirements = spec
	}

	live := cfg.Outreach.Live || opts.live
	email, sms := newSenders(cfg.Outreach)
	if live && sms == nil {
		log.Warn("Twilio is not configured, text messages will be skipped")
	}

	campaign := outreach.NewCampaign(email, sms, fsys, outreach.CampaignConfig{
		Live:        live,
		Concurrency: cfg.Outreach.Concurrency,
		Sender:      cfg.Outreach.Sender,
	}, log.With(logger.String("component", "outreach")))

	result, resultsPath, err := campaign.Run(ctx, artifact, path)
	if result != nil {
		renderCampaign(cmd.OutOrStdout(), result, resultsPath)
	}
	return err
}

// renderCampaign prints the per-supplier outcome of an outreach run
func renderCampaign(w io.Writer, result *outreach.CampaignResult, resultsPath string) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Supplier", "Email", "SMS"})

	for _, d := range result.Details {
		t.AppendRow(table.Row{d.Supplier, channelStatus(d.Email, d.EmailSent, d.EmailError, d.Skipped), channelStatus(d.Phone, d.SMSSent, d.SMSError, d.Skipped)})
	}
	t.AppendFooter(table.Row{
		fmt.Sprintf("%d suppliers", result.TotalSuppliers),
		fmt.Sprintf("%d sent, %d failed", result.EmailSent, result.EmailFailed),
		fmt.Sprintf("%d sent, %d failed", result.SMSSent, result.SMSFailed),
	})

	mode := "demo"
	if result.Live {
		mode = "live"
	}
	fmt.Fprintf(w, "\nOutreach results (%s mode):\n", mode)
	t.Render()
	if resultsPath != "" {
		fmt.Fprintf(w, "Saved to %s\n", resultsPath)
	}
}

func channelStatus(address string, sent bool, errMsg string, skipped bool) string {
	switch {
	case address == "":
		return "-"
	case sent:
		return "sent"
	case skipped:
		return "skipped"
	case errMsg != "":
		return "failed: " + errMsg
	default:
		return "not sent"
	}
}
