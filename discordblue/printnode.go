package discordblue

import (
	"context"
	"encoding/base64"
	"fmt"
	"github.com/lmittmann/tint"
	"golang.org/x/time/rate"
	"log/slog"
	"net/http"
)

const (
	printNodeContentPDF  = "pdf_base64"
	printNodeJobSource   = "discord-blue"
	assetLabelPrintTitle = "Asset Label"
)

// Printer is a PrintNode printer
type Printer struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	State       string `json:"state"`
	Computer    struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"computer"`
}

func (p Printer) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("id", p.ID),
		slog.String("name", p.Name),
		slog.String("state", p.State),
		slog.String("computer", p.Computer.Name),
	)
}

// PrintRequest is a PDF to print
type PrintRequest struct {
	PrinterID int
	Title     string
	PDF       []byte
	Copies    int
}

type printNodeJob struct {
	PrinterID   int              `json:"printerId"`
	Title       string           `json:"title"`
	ContentType string           `json:"contentType"`
	Content     string           `json:"content"`
	Source      string           `json:"source"`
	Options     printNodeOptions `json:"options"`
}

type printNodeOptions struct {
	Copies int `json:"copies"`
}

// PrintNode is a client for the PrintNode cloud printing API
type PrintNode struct {
	rest   *restClient
	config *PrintNodeConfig
	logger *slog.Logger
}

func newPrintNode(config *PrintNodeConfig, httpClient *http.Client) *PrintNode {
	logger := newComponentLogger(config.LogLevel, "printnode")
	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}
	return &PrintNode{
		config: config,
		logger: logger,
		rest: newRESTClient(
			config.URL,
			httpClient,
			rate.NewLimiter(limit, 1),
			logger,
			func(r *http.Request) {
				r.SetBasicAuth(config.APIKey, "")
			},
		),
	}
}

func (p *PrintNode) configured() error {
	if p.config.APIKey == "" {
		return fmt.Errorf("printnode: %w", ErrNotConfigured)
	}
	return nil
}

// Printers lists the printers on the account
func (p *PrintNode) Printers(ctx context.Context) ([]Printer, error) {
	if err := p.configured(); err != nil {
		return nil, err
	}
	var printers []Printer
	if err := p.rest.do(ctx, http.MethodGet, "/printers", nil, &printers); err != nil {
		return nil, fmt.Errorf("error listing printers: %w", err)
	}
	return printers, nil
}

// Print submits a PDF print job, returning the PrintNode job ID
func (p *PrintNode) Print(ctx context.Context, req PrintRequest) (int, error) {
	if err := p.configured(); err != nil {
		return 0, err
	}
	if req.Copies < 1 {
		req.Copies = 1
	}
	job := printNodeJob{
		PrinterID:   req.PrinterID,
		Title:       req.Title,
		ContentType: printNodeContentPDF,
		Content:     base64.StdEncoding.EncodeToString(req.PDF),
		Source:      printNodeJobSource,
		Options:     printNodeOptions{Copies: req.Copies},
	}

	var jobID int
	if err := p.rest.do(ctx, http.MethodPost, "/printjobs", job, &jobID); err != nil {
		metricPrintJobs.WithLabelValues(resultError).Inc()
		p.logger.ErrorContext(ctx, "error submitting print job", "printer_id", req.PrinterID, tint.Err(err))
		return 0, fmt.Errorf("error submitting print job: %w", err)
	}
	metricPrintJobs.WithLabelValues(resultSuccess).Inc()
	p.logger.InfoContext(
		ctx,
		"submitted print job",
		"printer_id", req.PrinterID,
		"title", req.Title,
		"job_id", jobID,
	)
	return jobID, nil
}
