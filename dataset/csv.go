package dataset

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/rforest/pkg/errors"
)

// ReadCSV reads a dataset with a header row. The column named labelColumn
// holds the class labels; an empty or "NA"/"NaN" label is read as missing.
// Every other column must be numeric.
func ReadCSV(r io.Reader, labelColumn string) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(err, "dataset.ReadCSV: reading header")
	}
	labelIdx := -1
	var names []string
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == labelColumn {
			labelIdx = i
			continue
		}
		names = append(names, h)
	}
	if labelIdx < 0 {
		return nil, errors.NewValidationError("label_column", "not found in CSV header", labelColumn)
	}
	if len(names) == 0 {
		return nil, errors.NewInvalidDataError("dataset.ReadCSV", "no feature columns")
	}

	var features, labels []float64
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, errors.Wrapf(err, "dataset.ReadCSV: line %d", line)
		}
		for i, field := range rec {
			field = strings.TrimSpace(field)
			if i == labelIdx {
				v, err := parseLabel(field)
				if err != nil {
					return nil, errors.Wrapf(err, "dataset.ReadCSV: line %d", line)
				}
				labels = append(labels, v)
				continue
			}
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "dataset.ReadCSV: line %d column %q", line, header[i])
			}
			features = append(features, v)
		}
	}
	if len(labels) == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "dataset.ReadCSV: no data rows")
	}
	X := mat.NewDense(len(labels), len(names), features)
	y := mat.NewDense(len(labels), 1, labels)
	return New(X, y, names)
}

func parseLabel(s string) (float64, error) {
	switch strings.ToLower(s) {
	case "", "na", "nan":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// LoadCSV opens path and reads it with ReadCSV.
func LoadCSV(path, labelColumn string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "dataset.LoadCSV: %s", path)
	}
	defer f.Close()
	return ReadCSV(f, labelColumn)
}
