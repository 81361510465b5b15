package main

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/dio26699-sudo/ocrmonday/internal/monday"
	"github.com/dio26699-sudo/ocrmonday/internal/ocr"
	"github.com/dio26699-sudo/ocrmonday/internal/pipeline"
	"github.com/dio26699-sudo/ocrmonday/internal/queue"
	"github.com/dio26699-sudo/ocrmonday/internal/record"
	"github.com/dio26699-sudo/ocrmonday/internal/webhook"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("ocrmonday")
	var (
		port          = fs.IntLong("port", 8080, "HTTP server port")
		apiURL        = fs.StringLong("api-url", "", "monday.com API URL (default https://api.monday.com/v2)")
		apiToken      = fs.StringLong("api-token", "", "monday.com API token (or set OCRMONDAY_API_TOKEN env var)")
		apiTimeout    = fs.DurationLong("api-timeout", 30*time.Second, "Timeout per monday.com API call")
		dbPath        = fs.StringLong("db", "ocrmonday.db", "Database file path")
		workers       = fs.IntLong("workers", 4, "Maximum concurrent jobs")
		interJobDelay = fs.DurationLong("inter-job-delay", 500*time.Millisecond, "Pause between jobs on one worker")
		retryAttempts = fs.IntLong("retry-attempts", 3, "Bounded attempts for monday.com calls")
		retryDelay    = fs.DurationLong("retry-delay", 2*time.Second, "Fixed pause between retry attempts")
		ocrEnabled    = fs.BoolLong("ocr", "Enable the tesseract free-text fallback")
		ocrLangs      = fs.StringLong("ocr-langs", "por,eng", "Comma-separated tesseract language codes")
		webhookToken  = fs.StringLong("webhook-token", "", "Shared token required on webhook deliveries (optional)")
		colTotal      = fs.StringLong("column-total", "numbers", "Column ID for the document total")
		colInvoice    = fs.StringLong("column-invoice", "text_invoice", "Column ID for the invoice number")
		colSupplier   = fs.StringLong("column-supplier", "text_supplier", "Column ID for the supplier name")
		colTaxID      = fs.StringLong("column-tax-id", "text_nif", "Column ID for the customer tax ID")
		colDate       = fs.StringLong("column-date", "date_invoice", "Column ID for the invoice date")
		colCurrency   = fs.StringLong("column-currency", "text_currency", "Column ID for the currency code")
		colMethod     = fs.StringLong("column-method", "text_method", "Column ID for the extraction method")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("OCRMONDAY"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if *apiToken == "" {
		slog.Error("monday.com API token is required. Set --api-token flag or OCRMONDAY_API_TOKEN environment variable")
		os.Exit(1)
	}

	// Initialize database
	slog.Info("Initializing database...")
	records, err := record.NewBoltStore(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer records.Close()

	// Initialize monday.com client
	columns := monday.ColumnMap{
		Total:         *colTotal,
		InvoiceNumber: *colInvoice,
		Supplier:      *colSupplier,
		CustomerTaxID: *colTaxID,
		InvoiceDate:   *colDate,
		Currency:      *colCurrency,
		Method:        *colMethod,
	}
	client := monday.NewClient(*apiURL, *apiToken, columns, *apiTimeout)

	// Initialize the optional OCR fallback
	var recognizer ocr.Recognizer
	if *ocrEnabled {
		langs := strings.Split(*ocrLangs, ",")
		slog.Info("Initializing tesseract...", "languages", langs)
		tess := ocr.NewTesseract(langs...)
		defer tess.Close()
		recognizer = tess
	}

	// Initialize pipeline and queue
	p := pipeline.New(pipeline.Config{
		Source:        client,
		Sink:          client,
		Recognizer:    recognizer,
		Records:       records,
		RetryAttempts: *retryAttempts,
		RetryDelay:    *retryDelay,
	})
	q := queue.New(p, *workers, *interJobDelay)

	// Initialize server
	server := webhook.NewServer(q, records, *webhookToken)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if *webhookToken != "" {
		slog.Info("Webhook token auth enabled")
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down, draining queue...")
	q.Wait()
}
