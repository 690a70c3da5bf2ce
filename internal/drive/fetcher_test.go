package drive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPickWorkbook(t *testing.T) {
	files := []*File{
		{ID: "0", Name: "archive", MimeType: folderMimeType},
		{ID: "1", Name: "notes.txt"},
		{ID: "2", Name: "Inventario_Marzo.XLSX"},
		{ID: "3", Name: "Inventario_Febrero.xlsx"},
	}

	f, err := pickWorkbook(files, "")
	require.NoError(t, err)
	assert.Equal(t, "2", f.ID, "newest workbook wins")

	f, err = pickWorkbook(files, "Inventario_Febrero.xlsx")
	require.NoError(t, err)
	assert.Equal(t, "3", f.ID)

	_, err = pickWorkbook(files, "missing.xlsx")
	assert.Error(t, err)

	_, err = pickWorkbook(files[:2], "")
	assert.Error(t, err)
}

func TestEscapeQuery(t *testing.T) {
	assert.Equal(t, `O\'Brien`, escapeQuery("O'Brien"))
	assert.Equal(t, `a\\b`, escapeQuery(`a\b`))
}
