package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/veilbreaker/sheetgate/internal/google/auth"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

// ErrRosterTabNotFound is returned when the configured tab GID does not
// exist in the roster spreadsheet.
var ErrRosterTabNotFound = errors.New("roster tab not found")

// RosterConfig locates the member name column inside a spreadsheet tab.
// StartRow is 1-based; rows above it are treated as headers.
type RosterConfig struct {
	SpreadsheetID string
	TabGID        int64
	Column        string
	StartRow      int
}

// SheetRoster reads the expected member list out of the roster spreadsheet
// via the Sheets values API, acting as the configured owner account.
type SheetRoster struct {
	manager    *auth.Manager
	ownerEmail string
	cfg        RosterConfig
	logger     *zap.Logger
}

// NewSheetRoster creates a roster reader over the given spreadsheet tab.
func NewSheetRoster(manager *auth.Manager, ownerEmail string, cfg RosterConfig, logger *zap.Logger) *SheetRoster {
	return &SheetRoster{
		manager:    manager,
		ownerEmail: ownerEmail,
		cfg:        cfg,
		logger:     logger.Named("sheet_roster"),
	}
}

// Nicknames returns the non-empty names in the configured column, in sheet
// order. The tab is addressed by GID and resolved to its title on every
// call, so renaming the tab does not break the lookup.
func (r *SheetRoster) Nicknames(ctx context.Context) ([]string, error) {
	var names []string

	err := r.manager.Do(ctx, r.ownerEmail, func(ctx context.Context, client *http.Client) error {
		service, err := sheetsapi.NewService(ctx, option.WithHTTPClient(client))
		if err != nil {
			return fmt.Errorf("failed to create sheets service: %w", err)
		}

		title, err := r.tabTitle(ctx, service)
		if err != nil {
			return err
		}

		readRange := fmt.Sprintf("'%s'!%s:%s", title, r.cfg.Column, r.cfg.Column)

		values, err := service.Spreadsheets.Values.Get(r.cfg.SpreadsheetID, readRange).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to read roster range %s: %w", readRange, err)
		}

		names = extractNames(values.Values, r.cfg.StartRow)

		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Debug("Read roster names",
		zap.String("spreadsheetID", r.cfg.SpreadsheetID),
		zap.Int("names", len(names)))

	return names, nil
}

func (r *SheetRoster) tabTitle(ctx context.Context, service *sheetsapi.Service) (string, error) {
	meta, err := service.Spreadsheets.Get(r.cfg.SpreadsheetID).
		Fields("sheets(properties(sheetId,title))").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to load roster spreadsheet: %w", err)
	}

	for _, sheet := range meta.Sheets {
		if sheet.Properties != nil && sheet.Properties.SheetId == r.cfg.TabGID {
			return sheet.Properties.Title, nil
		}
	}

	return "", fmt.Errorf("%w: gid %d", ErrRosterTabNotFound, r.cfg.TabGID)
}

// extractNames flattens the read rows into trimmed, non-empty names,
// skipping the header rows before startRow.
func extractNames(rows [][]any, startRow int) []string {
	if startRow > 1 {
		if startRow-1 >= len(rows) {
			return nil
		}

		rows = rows[startRow-1:]
	}

	var names []string

	for _, row := range rows {
		if len(row) == 0 {
			continue
		}

		name, ok := row[0].(string)
		if !ok {
			name = fmt.Sprint(row[0])
		}

		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		names = append(names, name)
	}

	return names
}
