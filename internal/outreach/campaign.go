// Package outreach contacts shortlisted suppliers with quotation requests by email and SMS.
package outreach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/smartprocure/backend/internal/domain"
	"github.com/smartprocure/backend/internal/logger"
)

// DefaultConcurrency is the number of suppliers contacted at the same time
const DefaultConcurrency = 5

const resultsTimestamp = "20060102T150405Z"

// EmailSender delivers one email
type EmailSender interface {
	SendEmail(ctx context.Context, to, toName string, msg *Message) error
}

// SMSSender delivers one text message and returns the provider's message id
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) (string, error)
}

// CampaignConfig holds outreach settings
type CampaignConfig struct {
	// Live dispatches messages; otherwise every send is only logged
	Live        bool
	Concurrency int
	Sender      string
}

// ContactResult records what happened for one supplier
type ContactResult struct {
	SupplierID string    `json:"supplier_id"`
	Supplier   string    `json:"supplier"`
	Email      string    `json:"email,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	EmailSent  bool      `json:"email_sent"`
	SMSSent    bool      `json:"sms_sent"`
	SMSID      string    `json:"sms_id,omitempty"`
	EmailError string    `json:"email_error,omitempty"`
	SMSError   string    `json:"sms_error,omitempty"`
	Skipped    bool      `json:"skipped,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// CampaignResult summarizes an outreach run
type CampaignResult struct {
	Live               bool            `json:"live"`
	Artifact           string          `json:"artifact,omitempty"`
	TotalSuppliers     int             `json:"total_suppliers"`
	SuppliersWithEmail int             `json:"suppliers_with_email"`
	SuppliersWithPhone int             `json:"suppliers_with_phone"`
	EmailSent          int             `json:"email_sent"`
	EmailFailed        int             `json:"email_failed"`
	SMSSent            int             `json:"sms_sent"`
	SMSFailed          int             `json:"sms_failed"`
	StartTime          time.Time       `json:"start_time"`
	EndTime            time.Time       `json:"end_time"`
	Details            []ContactResult `json:"details"`
}

// Campaign sends quotation requests to every supplier of a shortlist
type Campaign struct {
	renderer *Renderer
	email    EmailSender
	sms      SMSSender
	fs       afero.Fs
	cfg      CampaignConfig
	log      logger.Logger
	now      func() time.Time
}

// NewCampaign creates a campaign. email and sms may be nil when the channel is not configured;
// in demo mode both channels are simulated regardless.
func NewCampaign(email EmailSender, sms SMSSender, fsys afero.Fs, cfg CampaignConfig, log logger.Logger) *Campaign {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Campaign{
		renderer: NewRenderer(cfg.Sender),
		email:    email,
		sms:      sms,
		fs:       fsys,
		cfg:      cfg,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run contacts all suppliers of the artifact stored at artifactPath and saves the results
// next to it. It returns the results and the path they were written to. On cancellation the
// suppliers not yet contacted are marked skipped and the partial results are still saved.
func (c *Campaign) Run(ctx context.Context, artifact *domain.ShortlistArtifact, artifactPath string) (*CampaignResult, string, error) {
	if artifact == nil {
		return nil, "", fmt.Errorf("%w: nil shortlist artifact", domain.ErrInvalidRequest)
	}

	result := &CampaignResult{
		Live:           c.cfg.Live,
		Artifact:       artifactPath,
		TotalSuppliers: len(artifact.Suppliers),
		StartTime:      c.now(),
		Details:        make([]ContactResult, len(artifact.Suppliers)),
	}

	c.log.Info("Starting outreach campaign",
		logger.Int("suppliers", result.TotalSuppliers),
		logger.Bool("live", c.cfg.Live),
	)

	g := new(errgroup.Group)
	g.SetLimit(c.cfg.Concurrency)
	for i := range artifact.Suppliers {
		supplier := artifact.Suppliers[i].SupplierRecord
		g.Go(func() error {
			result.Details[i] = c.contact(ctx, supplier, artifact.Requirements)
			return nil
		})
	}
	_ = g.Wait()

	result.EndTime = c.now()
	for _, d := range result.Details {
		if d.Email != "" {
			result.SuppliersWithEmail++
		}
		if d.Phone != "" {
			result.SuppliersWithPhone++
		}
		if d.EmailSent {
			result.EmailSent++
		} else if d.EmailError != "" {
			result.EmailFailed++
		}
		if d.SMSSent {
			result.SMSSent++
		} else if d.SMSError != "" {
			result.SMSFailed++
		}
	}

	path, err := c.save(result, artifactPath)
	if err != nil {
		return result, "", err
	}

	c.log.Info("Outreach campaign completed",
		logger.Int("email_sent", result.EmailSent),
		logger.Int("email_failed", result.EmailFailed),
		logger.Int("sms_sent", result.SMSSent),
		logger.Int("sms_failed", result.SMSFailed),
		logger.String("results", path),
	)

	if err := ctx.Err(); err != nil {
		return result, path, err
	}
	return result, path, nil
}

func (c *Campaign) contact(ctx context.Context, supplier domain.SupplierRecord, spec *domain.RequirementSpec) ContactResult {
	res := ContactResult{
		SupplierID: supplier.ID,
		Supplier:   supplier.Name,
		Email:      supplier.Contact.Email,
		Phone:      supplier.Contact.Phone,
		Timestamp:  c.now(),
	}
	if ctx.Err() != nil {
		res.Skipped = true
		return res
	}

	if res.Email != "" {
		if err := c.sendEmail(ctx, supplier, spec); err != nil {
			res.EmailError = err.Error()
			c.log.Warn("Email failed", logger.String("supplier", supplier.Name), logger.Error(err))
		} else {
			res.EmailSent = true
		}
	}

	if res.Phone != "" {
		id, err := c.sendSMS(ctx, supplier, spec)
		switch {
		case errors.Is(err, errChannelDisabled):
		case err != nil:
			res.SMSError = err.Error()
			c.log.Warn("SMS failed", logger.String("supplier", supplier.Name), logger.Error(err))
		default:
			res.SMSSent = true
			res.SMSID = id
		}
	}
	return res
}

var errChannelDisabled = errors.New("channel not configured")

func (c *Campaign) sendEmail(ctx context.Context, supplier domain.SupplierRecord, spec *domain.RequirementSpec) error {
	msg, err := c.renderer.Email(supplier, spec)
	if err != nil {
		return err
	}
	if !c.cfg.Live {
		c.log.Info("[DEMO] Would send email",
			logger.String("to", supplier.Contact.Email),
			logger.String("supplier", supplier.Name),
			logger.String("subject", msg.Subject),
		)
		return nil
	}
	if c.email == nil {
		return errors.New("email sender not configured")
	}
	return c.email.SendEmail(ctx, supplier.Contact.Email, supplier.Name, msg)
}

func (c *Campaign) sendSMS(ctx context.Context, supplier domain.SupplierRecord, spec *domain.RequirementSpec) (string, error) {
	body := c.renderer.SMS(supplier, spec)
	if !c.cfg.Live {
		c.log.Info("[DEMO] Would send SMS",
			logger.String("to", supplier.Contact.Phone),
			logger.String("supplier", supplier.Name),
			logger.Int("length", len([]rune(body))),
		)
		return "", nil
	}
	if c.sms == nil {
		return "", errChannelDisabled
	}
	return c.sms.SendSMS(ctx, supplier.Contact.Phone, body)
}

func (c *Campaign) save(result *CampaignResult, artifactPath string) (string, error) {
	dir := filepath.Dir(artifactPath)
	if err := c.fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode outreach results: %w", err)
	}

	path := filepath.Join(dir, "outreach_results_"+result.StartTime.UTC().Format(resultsTimestamp)+".json")
	if err := afero.WriteFile(c.fs, path, data, 0o644); err != nil {
		return "", fmt.Errorf("write outreach results: %w", err)
	}
	return path, nil
}
