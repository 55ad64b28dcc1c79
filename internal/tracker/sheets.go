package tracker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/web3-feed/internal/config"
	"github.com/web3-feed/internal/models"
	"github.com/web3-feed/pkg/logger"
)

// SheetColumns defines the column headers of the content sheet
var SheetColumns = []string{
	"User",
	"Platform",
	"Content ID",
	"Author",
	"Date",
	"Sentiment",
	"Score",
	"Hashtags",
	"Content Preview",
	"URL",
	"Exported At",
}

const (
	defaultSheetName = "Content"
	previewLength    = 200
	queueSize        = 128
)

type batch struct {
	callerID string
	items    []models.ContentItem
}

// SheetsTracker mirrors newly stored content into a Google Sheet.
// Publish queues rows; a background worker appends them.
type SheetsTracker struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	now           func() time.Time
	log           *logger.Logger

	mu     sync.Mutex
	queue  chan batch
	closed bool
	done   chan struct{}
}

// NewSheetsTracker creates a new Google Sheets tracker. opts are appended to
// the credential options.
func NewSheetsTracker(ctx context.Context, cfg config.TrackerConfig, log *logger.Logger, opts ...option.ClientOption) (*SheetsTracker, error) {
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("tracker.spreadsheet_id is required")
	}

	var clientOpts []option.ClientOption
	// Try service account JSON first (for env var injection)
	if cfg.ServiceAccountJSON != "" {
		clientOpts = append(clientOpts, option.WithCredentialsJSON([]byte(cfg.ServiceAccountJSON)))
	} else if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	} else if len(opts) == 0 {
		return nil, fmt.Errorf("no Google credentials provided: set credentials_file or service_account_json")
	}
	clientOpts = append(clientOpts, opts...)

	srv, err := sheets.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	sheetName := cfg.SheetName
	if sheetName == "" {
		sheetName = defaultSheetName
	}

	return &SheetsTracker{
		service:       srv,
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     sheetName,
		now:           time.Now,
		log:           log.WithComponent("sheets-tracker"),
		queue:         make(chan batch, queueSize),
		done:          make(chan struct{}),
	}, nil
}

// InitializeSheet creates the sheet and headers if they don't exist
func (t *SheetsTracker) InitializeSheet(ctx context.Context) error {
	// First, ensure the sheet exists
	if err := t.ensureSheetExists(ctx); err != nil {
		return err
	}

	// Check if headers exist
	readRange := fmt.Sprintf("%s!A1:K1", t.sheetName)
	resp, err := t.service.Spreadsheets.Values.Get(t.spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to read sheet: %w", err)
	}

	// If no data, add headers
	if len(resp.Values) == 0 {
		t.log.Info().Msg("Initializing sheet with headers")
		return t.writeHeaders(ctx)
	}

	t.log.Debug().Msg("Sheet already has headers")
	return nil
}

// ensureSheetExists creates the sheet if it doesn't exist
func (t *SheetsTracker) ensureSheetExists(ctx context.Context) error {
	spreadsheet, err := t.service.Spreadsheets.Get(t.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to get spreadsheet: %w", err)
	}

	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == t.sheetName {
			return nil
		}
	}

	t.log.Info().Str("sheet", t.sheetName).Msg("Creating new sheet")
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{
			{
				AddSheet: &sheets.AddSheetRequest{
					Properties: &sheets.SheetProperties{Title: t.sheetName},
				},
			},
		},
	}

	if _, err := t.service.Spreadsheets.BatchUpdate(t.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	return nil
}

// writeHeaders writes column headers to the first row
func (t *SheetsTracker) writeHeaders(ctx context.Context) error {
	headerRow := make([]interface{}, 0, len(SheetColumns))
	for _, col := range SheetColumns {
		headerRow = append(headerRow, col)
	}

	writeRange := fmt.Sprintf("%s!A1", t.sheetName)
	valueRange := &sheets.ValueRange{
		Values: [][]interface{}{headerRow},
	}

	_, err := t.service.Spreadsheets.Values.Update(t.spreadsheetID, writeRange, valueRange).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	return nil
}

// AppendContent appends one row per item in a single request
func (t *SheetsTracker) AppendContent(ctx context.Context, callerID string, items []models.ContentItem) error {
	if len(items) == 0 {
		return nil
	}

	exportedAt := t.now().UTC().Format(time.RFC3339)
	rows := make([][]interface{}, 0, len(items))
	for _, item := range items {
		rows = append(rows, contentRow(callerID, item, exportedAt))
	}

	appendRange := fmt.Sprintf("%s!A:K", t.sheetName)
	_, err := t.service.Spreadsheets.Values.Append(t.spreadsheetID, appendRange, &sheets.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to append rows: %w", err)
	}

	t.log.Debug().Str("caller_id", callerID).Int("rows", len(rows)).Msg("Exported content to sheet")
	return nil
}

func contentRow(callerID string, item models.ContentItem, exportedAt string) []interface{} {
	preview := []rune(item.Content)
	if len(preview) > previewLength {
		preview = append(preview[:previewLength], []rune("...")...)
	}

	var hashtags string
	switch tags := item.Metadata[models.MetaHashtags].(type) {
	case []string:
		hashtags = strings.Join(tags, " ")
	case []interface{}:
		parts := make([]string, 0, len(tags))
		for _, tag := range tags {
			parts = append(parts, fmt.Sprint(tag))
		}
		hashtags = strings.Join(parts, " ")
	}

	return []interface{}{
		callerID,
		string(item.Platform),
		item.ID,
		item.Author,
		formatTime(item.Date),
		item.SentimentLabel(),
		fmt.Sprintf("%v", item.Metadata[models.MetaSentimentScore]),
		hashtags,
		string(preview),
		fmt.Sprintf("%v", valueOr(item.Metadata[models.MetaURL], "")),
		exportedAt,
	}
}

func valueOr(v interface{}, fallback interface{}) interface{} {
	if v == nil {
		return fallback
	}
	return v
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// Publish queues items for export without blocking. It returns the number
// of items queued, zero when the queue is full or the tracker is closed.
func (t *SheetsTracker) Publish(callerID string, items []models.ContentItem) int {
	if len(items) == 0 {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0
	}

	cp := make([]models.ContentItem, len(items))
	copy(cp, items)
	select {
	case t.queue <- batch{callerID: callerID, items: cp}:
		return len(items)
	default:
		t.log.Warn().Str("caller_id", callerID).Int("items", len(items)).Msg("Export queue full, rows dropped")
		return 0
	}
}

// Start runs the export worker until Close
func (t *SheetsTracker) Start() {
	go func() {
		defer close(t.done)
		for b := range t.queue {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := t.AppendContent(ctx, b.callerID, b.items); err != nil {
				t.log.Warn().Err(err).Str("caller_id", b.callerID).Msg("Failed to export content")
			}
			cancel()
		}
	}()
}

// Close stops accepting rows and waits for queued rows to be exported.
// It must only be called after Start.
func (t *SheetsTracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	close(t.queue)
	t.mu.Unlock()

	<-t.done
}
