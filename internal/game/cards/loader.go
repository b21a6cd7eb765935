package cards

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Loader supplies card definitions at process start.
type Loader interface {
	LoadCardDefinitions(ctx context.Context) ([]Definition, error)
}

// csvColumns is the header expected in card data files.
var csvColumns = []string{"key", "name", "coins", "potions", "debt", "types", "program", "victory_points", "expansion", "mat"}

// CSVLoader reads definitions from a CSV file.
type CSVLoader struct {
	Path string
}

// NewCSVLoader creates a loader for the CSV file at path.
func NewCSVLoader(path string) *CSVLoader {
	return &CSVLoader{Path: path}
}

// LoadCardDefinitions implements Loader.
func (l *CSVLoader) LoadCardDefinitions(ctx context.Context) ([]Definition, error) {
	file, err := os.Open(l.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open card data: %w", err)
	}
	defer file.Close()
	return ParseCSV(ctx, file)
}

// ParseCSV parses card definitions. The first row must be the header; blank
// lines and lines starting with '#' are skipped.
func ParseCSV(ctx context.Context, r io.Reader) ([]Definition, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("card data is empty")
	}

	header := records[0]
	index := make(map[string]int, len(header))
	for i, col := range header {
		index[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, col := range csvColumns[:6] {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("card data missing column %q", col)
		}
	}

	defs := make([]Definition, 0, len(records)-1)
	for i, record := range records[1:] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		def, err := parseRecord(record, index)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func parseRecord(record []string, index map[string]int) (Definition, error) {
	field := func(name string) string {
		i, ok := index[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}
	number := func(name string) (int, error) {
		v := field(name)
		if v == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s %q", name, v)
		}
		return n, nil
	}

	def := Definition{
		Key:       field("key"),
		Name:      field("name"),
		Program:   field("program"),
		Expansion: field("expansion"),
		Mat:       field("mat"),
	}
	if def.Name == "" {
		def.Name = def.Key
	}

	var err error
	if def.Cost.Coins, err = number("coins"); err != nil {
		return def, err
	}
	if def.Cost.Potions, err = number("potions"); err != nil {
		return def, err
	}
	if def.Cost.Debt, err = number("debt"); err != nil {
		return def, err
	}
	if def.VictoryPoints, err = number("victory_points"); err != nil {
		return def, err
	}

	for _, t := range strings.Split(field("types"), "|") {
		if t = strings.TrimSpace(t); t != "" {
			def.Types = append(def.Types, Type(t))
		}
	}
	return def, def.validate()
}
