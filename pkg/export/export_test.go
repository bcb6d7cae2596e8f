package export

import (
	"bytes"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pointsDataset(rows int) Dataset {
	data := Dataset{
		Title: "Activity Points",
		Columns: []Column{
			{Key: "usn", Title: "USN", Weight: 2},
			{Key: "name", Title: "Name", Weight: 3},
			{Key: "points", Title: "Points", Align: "R"},
		},
		GeneratedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	for i := 0; i < rows; i++ {
		data.Rows = append(data.Rows, map[string]string{
			"usn":    "CS" + strconv.Itoa(i),
			"name":   "Student, " + strconv.Itoa(i),
			"points": strconv.Itoa(i * 10),
		})
	}
	return data
}

func TestCSVExporterWritesTitlesAndQuotes(t *testing.T) {
	out, err := NewCSVExporter().Render(pointsDataset(2))
	require.NoError(t, err)
	assert.Equal(t, "USN,Name,Points\nCS0,\"Student, 0\",0\nCS1,\"Student, 1\",10\n", string(out))
}

func TestExportersRequireColumns(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	require.Error(t, err)
	_, err = NewPDFExporter().Render(Dataset{})
	require.Error(t, err)
}

func TestPDFExporterPaginates(t *testing.T) {
	out, err := NewPDFExporter().Render(pointsDataset(120))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
	assert.Equal(t, "application/pdf", NewPDFExporter().ContentType())
}

func TestColumnWidthsFillPage(t *testing.T) {
	widths := columnWidths(pointsDataset(0).Columns)
	assert.InDelta(t, 190.0, widths[0]+widths[1]+widths[2], 0.001)
	assert.InDelta(t, 63.333, widths[0], 0.01)
}
