package inspector

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sugawarayuuta/sonnet"

	"github.com/anthias-labs/arena/internal/domain"
)

// CSVSink writes one row per step to the target file, "<run id>.csv" by
// default.
type CSVSink struct{}

func (CSVSink) Save(_ context.Context, run domain.RunRecord, target string) error {
	return writeFile(defaultTarget(target, run.RunID, ".csv"), func(w io.Writer) error {
		return encodeCSV(w, run)
	})
}

// JSONSink writes the whole run as one JSON document, "<run id>.json" by
// default.
type JSONSink struct{}

func (JSONSink) Save(_ context.Context, run domain.RunRecord, target string) error {
	data, err := encodeJSON(run)
	if err != nil {
		return err
	}
	return writeFile(defaultTarget(target, run.RunID, ".json"), func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

func encodeCSV(w io.Writer, run domain.RunRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"run_id", "step", "value", "logged_at"}); err != nil {
		return err
	}
	for _, s := range run.Steps {
		row := []string{
			run.RunID,
			strconv.Itoa(s.Step),
			strconv.FormatFloat(s.Value, 'g', -1, 64),
			s.LoggedAt.Format(time.RFC3339Nano),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func encodeJSON(run domain.RunRecord) ([]byte, error) {
	if run.Steps == nil {
		run.Steps = []domain.StepRecord{}
	}
	data, err := sonnet.Marshal(run)
	if err != nil {
		return nil, fmt.Errorf("encode run: %w", err)
	}
	return append(data, '\n'), nil
}

// encodeRun picks the encoding from the target's extension: ".csv" gets CSV,
// anything else JSON.
func encodeRun(run domain.RunRecord, target string) ([]byte, string, error) {
	if filepath.Ext(target) == ".csv" {
		var buf bytes.Buffer
		if err := encodeCSV(&buf, run); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "text/csv", nil
	}
	data, err := encodeJSON(run)
	return data, "application/json", err
}

func defaultTarget(target, runID, ext string) string {
	if target != "" {
		return target
	}
	return runID + ext
}

// writeFile writes through a temp file in the target's directory and renames
// it into place.
func writeFile(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".arena-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
