package feed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// LoadSeriesCSV reads one column of a CSV file with a header row. The first
// value becomes the series' initial value and the rest are replayed in
// order.
func LoadSeriesCSV(path, column string) (*Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("feed: open series: %w", err)
	}
	defer f.Close()

	values, err := readColumn(csv.NewReader(f), column)
	if err != nil {
		return nil, fmt.Errorf("feed: %s: %w", path, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("feed: %s: no rows", path)
	}
	return NewSeries(values[0], values[1:]), nil
}

func readColumn(r *csv.Reader, column string) ([]float64, error) {
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := -1
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), column) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("column %q not found", column)
	}

	var out []float64
	for line := 2; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[idx]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, v)
	}
}
