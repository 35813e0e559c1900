package ingestion

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ParserKind identifies the parsing strategy chosen for a file. It is
// resolved once from the extension and passed along instead of re-sniffing
// the name at every layer.
type ParserKind int

const (
	KindXLSX ParserKind = iota
	KindXLS
	KindCSV
)

// ErrUnsupportedFormat is returned when an uploaded file is not supported.
var ErrUnsupportedFormat = errors.New("unsupported file format")

var byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

// ParseError reports a file that could not be opened or read. Legacy marks
// binary workbooks the in-process reader cannot handle, which are routed to
// the fallback bridge instead of being reported as a plain failure.
type ParseError struct {
	FileName string
	Legacy   bool
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s: %v", e.FileName, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParsedFile is the uniform tabular view produced by the parser. Rows are
// arrays of cells; header interpretation happens in the schema inferencer.
type ParsedFile struct {
	Rows  [][]string
	Sheet string
	// ProbeSerial is the device serial found on a vendor summary sheet,
	// when the workbook carries one. Empty for CSV and plain workbooks.
	ProbeSerial string
}

// DetectKind resolves the parser kind from the file extension.
func DetectKind(fileName string) (ParserKind, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".xlsx":
		return KindXLSX, nil
	case ".xls":
		return KindXLS, nil
	case ".csv":
		return KindCSV, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(fileName))
	}
}

// Parse materializes the file into rows. Legacy binary workbooks are not
// readable in process and come back as a ParseError with Legacy set.
func Parse(payload []byte, fileName string, kind ParserKind) (ParsedFile, error) {
	switch kind {
	case KindCSV:
		return parseCSV(payload, fileName)
	case KindXLSX:
		return parseWorkbook(payload, fileName)
	case KindXLS:
		return ParsedFile{}, &ParseError{
			FileName: fileName,
			Legacy:   true,
			Err:      errors.New("legacy binary workbook"),
		}
	default:
		return ParsedFile{}, fmt.Errorf("%w: unknown parser kind", ErrUnsupportedFormat)
	}
}

func parseCSV(payload []byte, fileName string) (ParsedFile, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	firstLine, _ := reader.Peek(4096)
	delimiter := detectDelimiter(firstLine)

	csvReader := csv.NewReader(reader)
	csvReader.Comma = delimiter
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return ParsedFile{}, &ParseError{FileName: fileName, Err: fmt.Errorf("failed to read csv: %w", err)}
	}

	return ParsedFile{Rows: filterEmptyRows(records), Sheet: ""}, nil
}

// detectDelimiter picks the separator that occurs most often on the first
// line. Vendor CSV exports use semicolons or tabs as often as commas.
func detectDelimiter(line []byte) rune {
	if idx := bytes.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	best, bestCount := ',', bytes.Count(line, []byte{','})
	for _, candidate := range []byte{';', '\t'} {
		if count := bytes.Count(line, []byte{candidate}); count > bestCount {
			best, bestCount = rune(candidate), count
		}
	}
	return best
}

func parseWorkbook(payload []byte, fileName string) (ParsedFile, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return ParsedFile{}, &ParseError{FileName: fileName, Err: fmt.Errorf("failed to open workbook: %w", err)}
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return ParsedFile{}, &ParseError{FileName: fileName, Err: errors.New("workbook has no sheets")}
	}

	sheet := pickSheet(sheets, GuessVendor(fileName))
	rows, err := f.GetRows(sheet)
	if err != nil {
		return ParsedFile{}, &ParseError{FileName: fileName, Err: fmt.Errorf("failed to read sheet %s: %w", sheet, err)}
	}

	return ParsedFile{
		Rows:        filterEmptyRows(rows),
		Sheet:       sheet,
		ProbeSerial: probeSummarySerial(f),
	}, nil
}

// pickSheet prefers the data sheet a known vendor ships, falling back to the
// first sheet for anything unrecognized.
func pickSheet(sheets []string, vendor string) string {
	if preferred, ok := vendorSheet(vendor); ok {
		for _, sheet := range sheets {
			if strings.EqualFold(sheet, preferred) {
				return sheet
			}
		}
	}
	return sheets[0]
}

// probeSummarySerial reads the device serial some vendors place on a summary
// sheet, cell B6. Missing sheet or empty cell is not an error.
func probeSummarySerial(f *excelize.File) string {
	for _, sheet := range f.GetSheetList() {
		if !strings.EqualFold(sheet, "Resumo") {
			continue
		}
		value, err := f.GetCellValue(sheet, "B6")
		if err != nil {
			return ""
		}
		return strings.TrimSpace(value)
	}
	return ""
}

func filterEmptyRows(rows [][]string) [][]string {
	var filtered [][]string
	for _, row := range rows {
		keep := false
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				keep = true
				break
			}
		}
		if keep {
			filtered = append(filtered, row)
		}
	}
	return filtered
}
