package query

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() *Result {
	return &Result{
		Columns: []string{"channel", "messages"},
		Rows: [][]interface{}{
			{"eng", int64(42)},
			{"general", int64(7)},
		},
	}
}

func TestRenderCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleResult(), FormatCSV))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "channel,messages", lines[0])
	assert.Equal(t, "eng,42", lines[1])
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleResult(), FormatJSON))

	var records []map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &records))
	require.Len(t, records, 2)
	assert.Equal(t, "eng", records[0]["channel"])
	assert.Equal(t, float64(42), records[0]["messages"])
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleResult(), FormatTable))
	out := buf.String()
	assert.Contains(t, out, "channel")
	assert.Contains(t, out, "eng")
	assert.Contains(t, out, "2 row(s)")
}

func TestRenderUnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Render(&buf, sampleResult(), "yaml"))
}

func TestRenderNullCells(t *testing.T) {
	result := &Result{Columns: []string{"a"}, Rows: [][]interface{}{{nil}}}
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, result, FormatCSV))
	assert.Equal(t, "a\n\n", buf.String())
}
