// Package roster fetches and decodes activity attendance rosters: externally
// hosted spreadsheets listing the USNs of participating students and an
// optional per-row points override.
package roster

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Decoding failures. Callers translate these into API errors.
var (
	ErrUnreadable = errors.New("roster unreadable")
	ErrNoHeader   = errors.New("roster has no usn header")
	ErrEmpty      = errors.New("roster has no student rows")
)

// Document formats.
const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"
)

// DefaultHeaderScanRows bounds how far down the header row may appear.
const DefaultHeaderScanRows = 10

var zipMagic = []byte("PK\x03\x04")

// Record is one roster row. Points is nil when the row carries no usable override.
type Record struct {
	USN    string `json:"usn"`
	Points *int   `json:"points,omitempty"`
}

// Roster is the decoded document.
type Roster struct {
	Format       string   `json:"format"`
	HeaderRow    int      `json:"header_row"`
	USNColumn    string   `json:"usn_column"`
	PointsColumn string   `json:"points_column,omitempty"`
	Records      []Record `json:"records"`
	Skipped      int      `json:"skipped"`
}

// USNs returns the record usns in roster order.
func (r *Roster) USNs() []string {
	out := make([]string, len(r.Records))
	for i, rec := range r.Records {
		out[i] = rec.USN
	}
	return out
}

// NormalizeUSN returns the canonical form of a student usn.
func NormalizeUSN(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// Decode parses roster bytes. It is a pure function of its input.
func Decode(data []byte, scanRows int) (*Roster, error) {
	if scanRows <= 0 {
		scanRows = DefaultHeaderScanRows
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmpty
	}

	var (
		rows   [][]string
		format string
		err    error
	)
	switch {
	case bytes.HasPrefix(data, zipMagic):
		format = FormatXLSX
		rows, err = readXLSX(data)
	case looksLikeHTML(data):
		return nil, fmt.Errorf("%w: received an HTML page, check that the sheet is shared publicly", ErrUnreadable)
	default:
		format = FormatCSV
		rows, err = readCSV(data)
	}
	if err != nil {
		return nil, err
	}

	headerRow, usnCol, pointsCol, ok := locateHeader(rows, scanRows)
	if !ok {
		return nil, fmt.Errorf("%w within the first %d rows", ErrNoHeader, scanRows)
	}

	out := &Roster{
		Format:    format,
		HeaderRow: headerRow + 1,
		USNColumn: strings.TrimSpace(rows[headerRow][usnCol]),
		Records:   make([]Record, 0, len(rows)-headerRow-1),
	}
	if pointsCol >= 0 {
		out.PointsColumn = strings.TrimSpace(rows[headerRow][pointsCol])
	}

	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows[headerRow+1:] {
		usn := NormalizeUSN(cell(row, usnCol))
		if usn == "" {
			out.Skipped++
			continue
		}
		if _, dup := seen[usn]; dup {
			out.Skipped++
			continue
		}
		seen[usn] = struct{}{}
		rec := Record{USN: usn}
		if pointsCol >= 0 {
			rec.Points = parsePoints(cell(row, pointsCol))
		}
		out.Records = append(out.Records, rec)
	}

	if len(out.Records) == 0 {
		return nil, ErrEmpty
	}
	return out, nil
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: open workbook: %v", ErrUnreadable, err)
	}
	defer f.Close() //nolint:errcheck

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrUnreadable)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: read sheet %q: %v", ErrUnreadable, sheets[0], err)
	}
	return rows, nil
}

func readCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var rows [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: csv: %v", ErrUnreadable, err)
		}
		rows = append(rows, record)
	}
	return rows, nil
}

func locateHeader(rows [][]string, scanRows int) (row, usnCol, pointsCol int, ok bool) {
	limit := scanRows
	if len(rows) < limit {
		limit = len(rows)
	}
	for i := 0; i < limit; i++ {
		usnCol, pointsCol = -1, -1
		for j, raw := range rows[i] {
			h := strings.ToLower(strings.TrimSpace(raw))
			switch {
			case usnCol < 0 && strings.Contains(h, "usn"):
				usnCol = j
			case pointsCol < 0 && (strings.Contains(h, "point") || strings.Contains(h, "score")):
				pointsCol = j
			}
		}
		if usnCol >= 0 {
			return i, usnCol, pointsCol, true
		}
	}
	return 0, -1, -1, false
}

func parsePoints(raw string) *int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return nil
	}
	// The ledger stores points as INTEGER.
	v = math.Round(v)
	if v > math.MaxInt32 {
		return nil
	}
	p := int(v)
	return &p
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func looksLikeHTML(data []byte) bool {
	head := bytes.ToLower(bytes.TrimSpace(data))
	if len(head) > 64 {
		head = head[:64]
	}
	return bytes.HasPrefix(head, []byte("<!doctype html")) || bytes.HasPrefix(head, []byte("<html"))
}
