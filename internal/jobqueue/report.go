package jobqueue

import (
	"bytes"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/procsearch/internal/model"
)

var reportColumns = []string{
	"Objeto", "Orgao", "UF", "Valor Estimado", "Data Publicacao", "Data Abertura",
	"Data Encerramento", "Dias Restantes", "Urgencia", "Relevancia", "Confianca", "Link",
}

// ReportGenerator builds the xlsx report byte stream for a completed
// search, grounded on the teacher's xlsx.go ingestion lineage (same
// library, write direction instead of read).
type ReportGenerator struct{}

// GenerateReport renders accepted as one sheet of an xlsx workbook and
// returns its serialized bytes.
func (ReportGenerator) GenerateReport(licitacoes []model.LicitacaoView) ([]byte, error) {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Oportunidades")
	if err != nil {
		return nil, eris.Wrap(err, "jobqueue: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range reportColumns {
		header.AddCell().SetString(col)
	}

	for _, v := range licitacoes {
		row := sheet.AddRow()
		row.AddCell().SetString(v.Objeto)
		row.AddCell().SetString(v.Orgao)
		row.AddCell().SetString(v.UF)
		row.AddCell().SetString(strconv.FormatFloat(v.Valor, 'f', 2, 64))
		row.AddCell().SetString(formatDate(v.DataPublicacao))
		row.AddCell().SetString(formatDate(v.DataAbertura))
		row.AddCell().SetString(formatDate(v.DataEncerramento))
		row.AddCell().SetString(strconv.Itoa(v.DiasRestantes))
		row.AddCell().SetString(v.Urgencia)
		row.AddCell().SetString(strconv.FormatFloat(v.RelevanceScore, 'f', 4, 64))
		row.AddCell().SetString(string(v.Confidence))
		row.AddCell().SetString(v.Link)
	}

	var buf bytes.Buffer
	if err := file.Write(&buf); err != nil {
		return nil, eris.Wrap(err, "jobqueue: serialize xlsx")
	}
	return buf.Bytes(), nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
