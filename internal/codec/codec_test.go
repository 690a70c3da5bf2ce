package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/stockcast/internal/domain"
)

func TestEncodeDecodeProducts(t *testing.T) {
	ss := 12.5
	in := []domain.Product{{
		Code:       "A-1",
		TotalStock: 40,
		Config: domain.Configuration{
			SafetyStock: &ss,
			Overrides:   domain.Overrides{LeadTimeDays: map[string]int{"ENE-2025": 30}},
		},
		Projections: []domain.Projection{{Month: "ENE-2025", Alerts: []domain.Alert{{ID: "x", AlertDate: "2025-01-02"}}}},
	}}

	data, err := EncodeProducts(in)
	require.NoError(t, err)
	assert.Equal(t, gzipMagic, data[:2])

	out, err := DecodeProducts(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodePlainJSON(t *testing.T) {
	out, err := DecodeProducts([]byte(`[{"CODIGO":"B-2","STOCK_TOTAL":7,"CONFIGURACION":{"LEAD_TIME_DAYS":15}}]`))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "B-2", out[0].Code)
	assert.Equal(t, 7.0, out[0].TotalStock)
	assert.Equal(t, 15, out[0].Config.LeadTimeDays)
}

func TestDecodeGarbage(t *testing.T) {
	_, err := DecodeProducts([]byte("{not json"))
	assert.Error(t, err)

	_, err = DecodeProducts([]byte{0x1f, 0x8b, 0x00})
	assert.Error(t, err)
}

func TestEncodeNil(t *testing.T) {
	data, err := EncodeProducts(nil)
	require.NoError(t, err)
	out, err := DecodeProducts(data)
	require.NoError(t, err)
	assert.Empty(t, out)
}
