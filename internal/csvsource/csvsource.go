package csvsource

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gocarina/gocsv"
)

// idColumn is the exact header the input CSV must carry. Matching is
// case-sensitive; "ID" or "id" columns are somebody else's export.
const idColumn = "Id"

// recordRow maps one line of an export CSV. Extra columns are ignored.
type recordRow struct {
	ID string `csv:"Id"`
}

// ReadIDs loads the Id column of the CSV at path. Rows with a blank id are
// skipped. A header without the Id column, or a file yielding no usable ids
// at all, is an error.
func ReadIDs(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	// Zoho exports often lead with a UTF-8 BOM
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	if err := checkHeader(data, path); err != nil {
		return nil, err
	}

	var rows []recordRow
	if err := gocsv.UnmarshalBytes(data, &rows); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		id := strings.TrimSpace(row.ID)
		if id == "" {
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%s: no usable ids in column %q", path, idColumn)
	}
	return ids, nil
}

// checkHeader verifies the first row names the Id column.
func checkHeader(data []byte, path string) error {
	header, err := csv.NewReader(bytes.NewReader(data)).Read()
	if err == io.EOF {
		return fmt.Errorf("%s: empty file", path)
	}
	if err != nil {
		return fmt.Errorf("read header of %s: %w", path, err)
	}

	for _, col := range header {
		if col == idColumn {
			return nil
		}
	}
	return fmt.Errorf("%s: missing required column %q", path, idColumn)
}
