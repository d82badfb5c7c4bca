package comprasnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/procsearch/internal/adapter"
	"github.com/sells-group/procsearch/internal/model"
)

func TestNormalize_ParsesBRDatesAndValues(t *testing.T) {
	t.Parallel()
	a := New(Config{})
	raw := map[string]any{
		"numero_licitacao": "90001/2026",
		"cnpj_orgao":       "00000000000191",
		"nome_orgao":       "Ministério Exemplo",
		"objeto":           "Contratação de serviços de limpeza",
		"uf":               "DF",
		"municipio":        "Brasília",
		"modalidade":       "05",
		"valor_estimado":   "1.250.000,50",
		"data_publicacao":  "01/07/2026",
		"situacao":         "ABERTA",
	}

	rec, err := a.Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, "ComprasNet", rec.SourceName)
	assert.Equal(t, "DF", rec.UF)
	assert.InDelta(t, 1250000.50, rec.ValorEstimado, 0.01)
	assert.Equal(t, 2026, rec.DataPublicacao.Year())
}

func TestNormalize_MissingNumberIsParseError(t *testing.T) {
	t.Parallel()
	a := New(Config{})
	_, err := a.Normalize(map[string]any{})
	require.Error(t, err)
	var parseErr *adapter.ParseError
	assert.ErrorAs(t, err, &parseErr)
}

func TestMetadata_AdvertisesNarrowerCapabilitySet(t *testing.T) {
	t.Parallel()
	md := New(Config{}).Metadata()
	assert.False(t, md.HasCapability(model.CapModalityFilter))
	assert.True(t, md.HasCapability(model.CapUFFilter))
	assert.Equal(t, 2, md.Priority)
}
