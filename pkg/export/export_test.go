package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset() Dataset {
	return Dataset{
		Title: "Homework",
		Columns: []Column{
			{Key: "date", Header: "Date"},
			{Key: "subject", Header: "Subject", Weight: 2},
			{Key: "text"},
		},
		Rows: []map[string]string{
			{"date": "12/01/2024", "subject": "Math", "text": "p. 4, ex 1-3"},
			{"date": "13/01/2024", "subject": "History"},
		},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter(false).Render(sampleDataset())
	require.NoError(t, err)
	assert.Equal(t, "Date,Subject,text\n12/01/2024,Math,\"p. 4, ex 1-3\"\n13/01/2024,History,\n", string(out))
}

func TestCSVExporterBOM(t *testing.T) {
	out, err := NewCSVExporter(true).Render(sampleDataset())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, utf8BOM))
}

func TestExportersRequireColumns(t *testing.T) {
	_, err := NewCSVExporter(false).Render(Dataset{})
	assert.Error(t, err)
	_, err = NewPDFExporter("").Render(Dataset{})
	assert.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	data := sampleDataset()
	for i := 0; i < 80; i++ {
		data.Rows = append(data.Rows, map[string]string{"date": "01/02/2024", "subject": "Science", "text": "a fairly long line of homework text that will not fit in its cell"})
	}
	out, err := NewPDFExporter("").Render(data)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}

func TestColumnWidths(t *testing.T) {
	widths := columnWidths(sampleDataset().Columns, 200)
	assert.InDeltaSlice(t, []float64{50, 100, 50}, widths, 0.001)
}
