package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mohammed-shakir/catastro-tool/internal/core/model"
)

// BatchCSVName is the default file name of a batch summary.
const BatchCSVName = "resumen_catastro.csv"

var batchCSVHeader = []string{
	"referencia", "entrada", "estado", "pasos_ok", "pasos_total",
	"latitud", "longitud", "afecciones", "capas_afectadas",
	"zip", "inicio", "fin", "error",
}

// BatchCSV renders one row per run, in the given order.
func BatchCSV(results []model.RunResult) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(batchCSVHeader); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range results {
		if err := w.Write(batchRow(r)); err != nil {
			return nil, fmt.Errorf("write csv row %s: %w", r.Input, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteBatchCSV stores the summary at path, creating parent directories.
func WriteBatchCSV(path string, results []model.RunResult) error {
	b, err := BatchCSV(results)
	if err != nil {
		return err
	}
	return writeFile(path, b)
}

func batchRow(r model.RunResult) []string {
	ok, total := r.Tally()
	var lat, lon string
	if c := r.Coordinates; c != nil {
		lat = strconv.FormatFloat(round6(c.Lat), 'f', -1, 64)
		lon = strconv.FormatFloat(round6(c.Lon), 'f', -1, 64)
	}
	var layers []string
	for _, a := range r.Affectations {
		if a.Detected {
			layers = append(layers, a.Layer)
		}
	}
	return []string{
		r.Reference,
		r.Input,
		string(r.Status),
		strconv.Itoa(ok),
		strconv.Itoa(total),
		lat,
		lon,
		strconv.Itoa(len(layers)),
		strings.Join(layers, ";"),
		r.ZipPath,
		stamp(r.StartedAt),
		stamp(r.FinishedAt),
		r.Error,
	}
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
