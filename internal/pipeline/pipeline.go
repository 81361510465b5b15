package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dio26699-sudo/ocrmonday/internal/decode"
	"github.com/dio26699-sudo/ocrmonday/internal/document"
	"github.com/dio26699-sudo/ocrmonday/internal/extract"
	"github.com/dio26699-sudo/ocrmonday/internal/ocr"
	"github.com/dio26699-sudo/ocrmonday/internal/queue"
	"github.com/dio26699-sudo/ocrmonday/internal/record"
)

// File is one document attached to a board item.
type File struct {
	Name string
	URL  string
}

// Source lists and fetches the files attached to an item.
type Source interface {
	ItemFiles(itemID string) ([]File, error)
	Download(url string) ([]byte, error)
}

// Sink receives the extracted fields for an item. It is called for every
// completed job, including decode exhaustion, so downstream always sees an
// update.
type Sink interface {
	ApplyFields(itemID, boardID string, fields extract.Fields) error
}

// Config wires a pipeline's collaborators. Source and Sink are required;
// Recognizer and Records are optional features.
type Config struct {
	Source     Source
	Sink       Sink
	Recognizer ocr.Recognizer // nil disables the free-text OCR fallback
	Records    record.Store   // nil disables the processed-job audit trail

	RetryAttempts int           // bounded attempts for source/sink calls
	RetryDelay    time.Duration // fixed pause between attempts
}

// Pipeline processes one job end to end: fetch the item's files, locate and
// decode the invoice code, parse fields, push them downstream.
type Pipeline struct {
	source     Source
	sink       Sink
	cascade    *decode.Cascade
	recognizer ocr.Recognizer
	records    record.Store
	attempts   int
	retryDelay time.Duration
}

// New builds a pipeline from the given configuration.
func New(cfg Config) *Pipeline {
	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 3
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = 2 * time.Second
	}
	return &Pipeline{
		source:     cfg.Source,
		sink:       cfg.Sink,
		cascade:    decode.NewCascade(),
		recognizer: cfg.Recognizer,
		records:    cfg.Records,
		attempts:   attempts,
		retryDelay: delay,
	}
}

// Process implements queue.Processor. Any failure is local to this job: the
// error return is logged by the pool and the queue continues.
func (p *Pipeline) Process(job queue.Job) error {
	var files []File
	err := p.retry("fetch item files", func() error {
		var err error
		files, err = p.source.ItemFiles(job.ItemID)
		return err
	})
	if err != nil {
		return fmt.Errorf("fetching files for item %s: %w", job.ItemID, err)
	}
	if len(files) == 0 {
		slog.Info("Item has no files, nothing to do", "item_id", job.ItemID)
		return nil
	}

	fields, extractErr := p.extractFields(job, files)

	// The null-result update still goes out even when extraction failed, so
	// downstream always observes the job.
	applyErr := p.retry("apply fields", func() error {
		return p.sink.ApplyFields(job.ItemID, job.BoardID, fields)
	})
	p.saveRecord(job, fields, firstError(extractErr, applyErr))
	if applyErr != nil {
		return fmt.Errorf("applying fields to item %s: %w", job.ItemID, applyErr)
	}
	if extractErr != nil {
		return fmt.Errorf("item %s: %w", job.ItemID, extractErr)
	}

	slog.Info("Job completed",
		"item_id", job.ItemID,
		"method", fields.Method,
		"invoice_number", fields.InvoiceNumber,
		"total", fields.TotalValue,
	)
	return nil
}

// extractFields walks the item's files in order; the first file whose code
// decodes wins. When no file carries a decodable code the first renderable
// file is OCR'd instead, and if that also yields nothing the record reports
// that no pathway produced values. The returned error is non-nil only when
// not a single file could be read at all, which fails the job; decode
// exhaustion on readable files is a valid terminal outcome, not an error.
func (p *Pipeline) extractFields(job queue.Job, files []File) (extract.Fields, error) {
	type fallback struct {
		name string
		data []byte
	}
	var ocrCandidate *fallback
	var lastSkipErr error
	readable := 0

	for _, file := range files {
		var data []byte
		err := p.retry("download file", func() error {
			var err error
			data, err = p.source.Download(file.URL)
			return err
		})
		if err != nil {
			slog.Warn("Skipping file, download failed", "item_id", job.ItemID, "file", file.Name, "error", err)
			lastSkipErr = err
			continue
		}

		producers, err := document.Adapt(file.Name, data)
		if err != nil {
			slog.Warn("Skipping unsupported file", "item_id", job.ItemID, "file", file.Name, "error", err)
			lastSkipErr = err
			continue
		}
		readable++

		result, err := p.cascade.Decode(producers)
		if err != nil {
			if errors.Is(err, decode.ErrNotFound) && ocrCandidate == nil {
				ocrCandidate = &fallback{name: file.Name, data: data}
			}
			continue
		}

		slog.Info("Decoded invoice code",
			"item_id", job.ItemID,
			"file", file.Name,
			"engine", result.Engine,
			"strategy", result.Strategy,
			"source", result.Source,
		)
		return extract.FromPayload(result.Payload), nil
	}

	if p.recognizer != nil && ocrCandidate != nil {
		if fields, ok := p.recognizeText(job, ocrCandidate.name, ocrCandidate.data); ok {
			return fields, nil
		}
	}
	if readable == 0 {
		// lastSkipErr keeps the real cause: a download failure stays a
		// download failure, an unrecognized extension already wraps
		// document.ErrUnsupportedFormat.
		return extract.Fields{Method: extract.MethodNone},
			fmt.Errorf("none of %d attached files could be read: %w", len(files), lastSkipErr)
	}
	return extract.Fields{Method: extract.MethodNone}, nil
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// recognizeText renders the file once more at its top scale and runs OCR over
// it, feeding the result to the free-text heuristics.
func (p *Pipeline) recognizeText(job queue.Job, name string, data []byte) (extract.Fields, bool) {
	producers, err := document.Adapt(name, data)
	if err != nil {
		return extract.Fields{}, false
	}
	for _, producer := range producers {
		raster, err := producer.Produce()
		if err != nil {
			continue
		}
		text, err := p.recognizer.RecognizeText(raster.Image)
		if err != nil {
			slog.Warn("OCR failed", "item_id", job.ItemID, "file", name, "error", err)
			return extract.Fields{}, false
		}
		if strings.TrimSpace(text) == "" {
			return extract.Fields{}, false
		}
		slog.Info("Falling back to free-text extraction", "item_id", job.ItemID, "file", name)
		return extract.FromText(text), true
	}
	return extract.Fields{}, false
}

func (p *Pipeline) saveRecord(job queue.Job, fields extract.Fields, applyErr error) {
	if p.records == nil {
		return
	}
	rec := &record.JobRecord{
		ID:          fmt.Sprintf("%s-%d", job.ItemID, time.Now().UnixNano()),
		ItemID:      job.ItemID,
		BoardID:     job.BoardID,
		Fields:      fields,
		ProcessedAt: time.Now(),
	}
	if applyErr != nil {
		rec.Error = applyErr.Error()
	}
	if err := p.records.SaveJob(rec); err != nil {
		slog.Warn("Failed to save job record", "item_id", job.ItemID, "error", err)
	}
}

// retry runs fn up to the configured attempt count with a fixed pause in
// between, for calls that cross the network.
func (p *Pipeline) retry(name string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt < p.attempts {
			slog.Warn("Retrying after failure", "call", name, "attempt", attempt, "error", err)
			time.Sleep(p.retryDelay)
		}
	}
	return err
}
