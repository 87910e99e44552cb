// sheets.go - Google Sheets backed municipality directory and execution log sheet

package storage

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// DefaultMunicipalityRange holds name in column A and context code in column B
const DefaultMunicipalityRange = "自治体DB!A2:B"

// MunicipalityTTL is how long the directory is cached
const MunicipalityTTL = time.Hour

// Municipality is one directory entry
type Municipality struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// NewSheetsService creates a Sheets client from client options
func NewSheetsService(ctx context.Context, readOnly bool, opts ...option.ClientOption) (*sheets.Service, error) {
	scope := sheets.SpreadsheetsScope
	if readOnly {
		scope = sheets.SpreadsheetsReadonlyScope
	}
	opts = append([]option.ClientOption{option.WithScopes(scope)}, opts...)
	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Sheets service: %w", err)
	}
	return srv, nil
}

// MunicipalityDirectory maps municipality names to reference context codes
type MunicipalityDirectory struct {
	srv           *sheets.Service
	spreadsheetID string
	readRange     string
	cache         *TTLCache[[]Municipality]
	logger        zerolog.Logger
}

// NewMunicipalityDirectory creates a directory reading spreadsheetID!readRange
func NewMunicipalityDirectory(srv *sheets.Service, spreadsheetID, readRange string, logger zerolog.Logger) *MunicipalityDirectory {
	if readRange == "" {
		readRange = DefaultMunicipalityRange
	}
	return &MunicipalityDirectory{
		srv:           srv,
		spreadsheetID: spreadsheetID,
		readRange:     readRange,
		cache:         NewTTLCache[[]Municipality](MunicipalityTTL),
		logger:        logger.With().Str("component", "municipalities").Logger(),
	}
}

// List returns every municipality with both a name and a code, sorted by name
func (m *MunicipalityDirectory) List(ctx context.Context) ([]Municipality, error) {
	return m.cache.GetOrLoad(m.spreadsheetID, func() ([]Municipality, error) {
		return m.load(ctx)
	})
}

// CodeFor resolves a municipality name, tolerating width and spacing differences
func (m *MunicipalityDirectory) CodeFor(ctx context.Context, name string) (string, bool, error) {
	list, err := m.List(ctx)
	if err != nil {
		return "", false, err
	}
	mu, ok := matchMunicipality(list, name)
	return mu.Code, ok, nil
}

func (m *MunicipalityDirectory) load(ctx context.Context) ([]Municipality, error) {
	resp, err := m.srv.Spreadsheets.Values.Get(m.spreadsheetID, m.readRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read municipality sheet: %w", err)
	}

	byName := make(map[string]string, len(resp.Values))
	for _, row := range resp.Values {
		if len(row) < 2 {
			continue
		}
		name, code := cellString(row[0]), cellString(row[1])
		if name == "" || code == "" {
			continue
		}
		byName[name] = code
	}

	list := make([]Municipality, 0, len(byName))
	for name, code := range byName {
		list = append(list, Municipality{Name: name, Code: code})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })

	m.logger.Info().Int("count", len(list)).Msg("loaded municipality directory")
	return list, nil
}

func cellString(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// DefaultLogSheet is the tab execution logs are appended to
const DefaultLogSheet = "logs"

var jst = time.FixedZone("JST", 9*60*60)

// SheetsHistory appends execution logs to a spreadsheet tab
type SheetsHistory struct {
	srv           *sheets.Service
	spreadsheetID string
	sheet         string
}

// NewSheetsHistory creates a log sheet writer
func NewSheetsHistory(srv *sheets.Service, spreadsheetID, sheet string) *SheetsHistory {
	if sheet == "" {
		sheet = DefaultLogSheet
	}
	return &SheetsHistory{srv: srv, spreadsheetID: spreadsheetID, sheet: sheet}
}

// SaveExecution implements HistoryStore
func (s *SheetsHistory) SaveExecution(ctx context.Context, log ExecutionLog) error {
	row := []interface{}{
		log.CreatedAt.In(jst).Format("2006/01/02 15:04:05"),
		log.User,
		log.ImageCount,
		log.InputTokens,
		log.OutputTokens,
		log.TotalTokens,
		log.CostJPY,
		log.RunID,
	}
	_, err := s.srv.Spreadsheets.Values.
		Append(s.spreadsheetID, s.sheet+"!A:H", &sheets.ValueRange{Values: [][]interface{}{row}}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to append execution log: %w", err)
	}
	return nil
}

// RecentExecutions implements HistoryStore, newest first
func (s *SheetsHistory) RecentExecutions(ctx context.Context, limit int) ([]ExecutionLog, error) {
	resp, err := s.srv.Spreadsheets.Values.Get(s.spreadsheetID, s.sheet+"!A2:H").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read execution logs: %w", err)
	}

	logs := make([]ExecutionLog, 0, len(resp.Values))
	for i := len(resp.Values) - 1; i >= 0 && len(logs) < limit; i-- {
		if l, ok := parseLogRow(resp.Values[i]); ok {
			logs = append(logs, l)
		}
	}
	return logs, nil
}

func parseLogRow(row []interface{}) (ExecutionLog, bool) {
	if len(row) < 7 {
		return ExecutionLog{}, false
	}
	created, err := time.ParseInLocation("2006/01/02 15:04:05", cellString(row[0]), jst)
	if err != nil {
		return ExecutionLog{}, false
	}
	atoi := func(v interface{}) int {
		n, _ := strconv.Atoi(cellString(v))
		return n
	}
	cost, _ := strconv.ParseFloat(cellString(row[6]), 64)

	l := ExecutionLog{
		CreatedAt:    created,
		User:         cellString(row[1]),
		ImageCount:   atoi(row[2]),
		InputTokens:  atoi(row[3]),
		OutputTokens: atoi(row[4]),
		TotalTokens:  atoi(row[5]),
		CostJPY:      cost,
	}
	if len(row) > 7 {
		l.RunID = cellString(row[7])
	}
	return l, true
}

// Close implements HistoryStore
func (s *SheetsHistory) Close(context.Context) error {
	return nil
}
