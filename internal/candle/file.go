package candle

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
)

// Record is the parquet schema for stored bars.
type Record struct {
	Symbol    string  `parquet:"symbol"`
	Timeframe string  `parquet:"timeframe"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
}

var csvHeader = []string{"timestamp", "open", "high", "low", "close", "volume"}

// LoadFile reads candles from a .csv or .parquet file, chosen by extension.
func LoadFile(path, symbol, timeframe string) ([]Candle, error) {
	switch {
	case strings.HasSuffix(path, ".parquet"):
		return LoadParquet(path)
	case strings.HasSuffix(path, ".csv"):
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		return ReadCSV(f, symbol, timeframe)
	default:
		return nil, fmt.Errorf("unsupported candle file %q: want .csv or .parquet", path)
	}
}

// SaveFile writes candles to a .csv or .parquet file, chosen by extension.
func SaveFile(path string, candles []Candle) error {
	switch {
	case strings.HasSuffix(path, ".parquet"):
		return SaveParquet(path, candles)
	case strings.HasSuffix(path, ".csv"):
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		if err := WriteCSV(f, candles); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	default:
		return fmt.Errorf("unsupported candle file %q: want .csv or .parquet", path)
	}
}

// ReadCSV parses rows of timestamp,open,high,low,close,volume. The timestamp
// may be RFC3339 or Unix milliseconds. A header row is skipped.
func ReadCSV(r io.Reader, symbol, timeframe string) ([]Candle, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var candles []Candle
	for line := 1; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		if len(row) < 6 {
			return nil, fmt.Errorf("csv line %d: want 6 columns, got %d", line, len(row))
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(row[0]), "timestamp") {
			continue
		}

		ts, err := parseTimestamp(strings.TrimSpace(row[0]))
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		var vals [5]float64
		for i := range vals {
			vals[i], err = strconv.ParseFloat(strings.TrimSpace(row[i+1]), 64)
			if err != nil {
				return nil, fmt.Errorf("csv line %d column %s: %w", line, csvHeader[i+1], err)
			}
		}
		candles = append(candles, Candle{
			Timestamp: ts,
			Open:      vals[0],
			High:      vals[1],
			Low:       vals[2],
			Close:     vals[3],
			Volume:    vals[4],
			Symbol:    symbol,
			Timeframe: timeframe,
			Source:    "csv",
		})
	}
	return candles, nil
}

// WriteCSV writes candles with an RFC3339 timestamp column.
func WriteCSV(w io.Writer, candles []Candle) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, c := range candles {
		row := []string{
			c.Timestamp.UTC().Format(time.RFC3339),
			strconv.FormatFloat(c.Open, 'f', -1, 64),
			strconv.FormatFloat(c.High, 'f', -1, 64),
			strconv.FormatFloat(c.Low, 'f', -1, 64),
			strconv.FormatFloat(c.Close, 'f', -1, 64),
			strconv.FormatFloat(c.Volume, 'f', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// LoadParquet reads a parquet file written by SaveParquet.
func LoadParquet(path string) ([]Candle, error) {
	rows, err := parquet.ReadFile[Record](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet %s: %w", path, err)
	}
	candles := make([]Candle, len(rows))
	for i, r := range rows {
		candles[i] = Candle{
			Timestamp: time.UnixMilli(r.Timestamp).UTC(),
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
			Symbol:    r.Symbol,
			Timeframe: r.Timeframe,
			Source:    "parquet",
		}
	}
	return candles, nil
}

// SaveParquet writes candles as Record rows.
func SaveParquet(path string, candles []Candle) error {
	records := make([]Record, len(candles))
	for i, c := range candles {
		records[i] = Record{
			Symbol:    c.Symbol,
			Timeframe: c.Timeframe,
			Timestamp: c.Timestamp.UnixMilli(),
			Open:      c.Open,
			High:      c.High,
			Low:       c.Low,
			Close:     c.Close,
			Volume:    c.Volume,
		}
	}
	if err := parquet.WriteFile(path, records); err != nil {
		return fmt.Errorf("write parquet %s: %w", path, err)
	}
	return nil
}

func parseTimestamp(s string) (time.Time, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
