package csvsource

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "records.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadIDs_HappyPath(t *testing.T) {
	path := writeCSV(t, "Id,Subject,Due_Date\n111,Call back,2024-01-01\n222,Send quote,2024-02-01\n333,Follow up,2024-03-01\n")

	ids, err := ReadIDs(path)

	require.NoError(t, err)
	assert.Equal(t, []string{"111", "222", "333"}, ids)
}

func TestReadIDs_SkipsBlankIDs(t *testing.T) {
	path := writeCSV(t, "Id\n111\n\n   \n222\n")

	ids, err := ReadIDs(path)

	require.NoError(t, err)
	assert.Equal(t, []string{"111", "222"}, ids)
}

func TestReadIDs_TrimsWhitespace(t *testing.T) {
	path := writeCSV(t, "Id\n 111 \n")

	ids, err := ReadIDs(path)

	require.NoError(t, err)
	assert.Equal(t, []string{"111"}, ids)
}

func TestReadIDs_StripsBOM(t *testing.T) {
	path := writeCSV(t, "\uFEFFId\n111\n")

	ids, err := ReadIDs(path)

	require.NoError(t, err)
	assert.Equal(t, []string{"111"}, ids)
}

func TestReadIDs_MissingIDColumn(t *testing.T) {
	// column matching is case-sensitive, "ID" does not count
	path := writeCSV(t, "ID,Name\n111,foo\n")

	_, err := ReadIDs(path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing required column "Id"`)
}

func TestReadIDs_AllBlank(t *testing.T) {
	path := writeCSV(t, "Id,Name\n,foo\n  ,bar\n")

	_, err := ReadIDs(path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no usable ids")
}

func TestReadIDs_HeaderOnly(t *testing.T) {
	path := writeCSV(t, "Id,Name\n")

	_, err := ReadIDs(path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no usable ids")
}

func TestReadIDs_EmptyFile(t *testing.T) {
	path := writeCSV(t, "")

	_, err := ReadIDs(path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty file")
}

func TestReadIDs_MissingFile(t *testing.T) {
	_, err := ReadIDs(filepath.Join(t.TempDir(), "nope.csv"))

	require.Error(t, err)
}
