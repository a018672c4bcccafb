// Package dataset bundles the wine classification dataset used to
// train and evaluate models.
package dataset

import (
	"bytes"
	_ "embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strconv"
)

//go:embed wine.csv
var wineCSV []byte

// Dataset holds a flat feature matrix with one label per row.
type Dataset struct {
	Features     [][]float64
	Labels       []int
	FeatureNames []string
	ClassNames   []string
}

// Load parses the bundled wine dataset.
func Load() (*Dataset, error) {
	return parse(bytes.NewReader(wineCSV))
}

// LoadFile parses a dataset from an external CSV with the same layout
// as the bundled file: a header row, feature columns, and a trailing
// integer "target" column.
func LoadFile(path string) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return parse(file)
}

func parse(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) < 2 {
		return nil, errors.New("dataset needs at least one feature column and a target column")
	}
	if header[len(header)-1] != "target" {
		return nil, errors.New("last column must be named target")
	}
	featureNames := header[:len(header)-1]

	ds := &Dataset{FeatureNames: featureNames}
	maxLabel := -1
	row := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", row, err)
		}
		values := make([]float64, len(featureNames))
		for i := range featureNames {
			v, err := strconv.ParseFloat(record[i], 64)
			if err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", row, featureNames[i], err)
			}
			values[i] = v
		}
		label, err := strconv.Atoi(record[len(record)-1])
		if err != nil {
			return nil, fmt.Errorf("row %d target: %w", row, err)
		}
		if label < 0 {
			return nil, fmt.Errorf("row %d: negative target %d", row, label)
		}
		if label > maxLabel {
			maxLabel = label
		}
		ds.Features = append(ds.Features, values)
		ds.Labels = append(ds.Labels, label)
		row++
	}
	if len(ds.Features) == 0 {
		return nil, errors.New("dataset is empty")
	}

	ds.ClassNames = make([]string, maxLabel+1)
	for i := range ds.ClassNames {
		ds.ClassNames[i] = fmt.Sprintf("class_%d", i)
	}
	return ds, nil
}

// Split shuffles the dataset with the given seed and splits it into
// train and test partitions.
func (d *Dataset) Split(testRatio float64, seed int64) (trainX [][]float64, trainY []int, testX [][]float64, testY []int) {
	if testRatio <= 0 || testRatio >= 1 {
		testRatio = 0.2
	}
	rnd := rand.New(rand.NewSource(seed))
	indices := rnd.Perm(len(d.Features))

	split := len(d.Features) - int(float64(len(d.Features))*testRatio)
	for i, idx := range indices {
		if i < split {
			trainX = append(trainX, d.Features[idx])
			trainY = append(trainY, d.Labels[idx])
		} else {
			testX = append(testX, d.Features[idx])
			testY = append(testY, d.Labels[idx])
		}
	}
	return trainX, trainY, testX, testY
}
