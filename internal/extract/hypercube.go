package extract

import (
	"bytes"
	"covid19au/internal/snapshot"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

var ErrNoHypercube = errors.New("layout has no hypercube")

// Layout is the part of an engine object layout that holds table data.
type Layout struct {
	Info struct {
		ID   string `json:"qId"`
		Type string `json:"qType"`
	} `json:"qInfo"`
	Title     string     `json:"title"`
	Hypercube *Hypercube `json:"qHyperCube"`
}

type Hypercube struct {
	Dimensions []FieldInfo `json:"qDimensionInfo"`
	Measures   []FieldInfo `json:"qMeasureInfo"`
	DataPages  []DataPage  `json:"qDataPages"`
}

type FieldInfo struct {
	FallbackTitle string `json:"qFallbackTitle"`
}

type DataPage struct {
	Matrix [][]Datapoint `json:"qMatrix"`
}

type Datapoint struct {
	Text   string `json:"qText"`
	Num    QNum   `json:"qNum"`
	IsNull bool   `json:"qIsNull"`
}

// QNum is the numeric value of a datapoint, the engine sends the string
// "NaN" for datapoints that are not numbers.
type QNum float64

func (q *QNum) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] == '"' || bytes.Equal(data, []byte("null")) {
		*q = QNum(math.NaN())
		return nil
	}
	var n float64
	err := json.Unmarshal(data, &n)
	if err != nil {
		return err
	}
	*q = QNum(n)
	return nil
}

func (q QNum) valid() bool {
	f := float64(q)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func (d Datapoint) cell() snapshot.Cell {
	if d.IsNull {
		return snapshot.MissingCell()
	}
	if d.Num.valid() {
		return snapshot.NumberCell(float64(d.Num))
	}
	return snapshot.TextCell(d.Text)
}

// Header is the dimension titles followed by the measure titles.
func (h Hypercube) Header() []string {
	header := make([]string, 0, len(h.Dimensions)+len(h.Measures))
	for _, d := range h.Dimensions {
		header = append(header, d.FallbackTitle)
	}
	for _, m := range h.Measures {
		header = append(header, m.FallbackTitle)
	}
	return header
}

// HypercubeTable zips every row of every data page of a layout with its
// header. Datapoints beyond the header are dropped.
func HypercubeTable(name snapshot.TableName, rawLayout json.RawMessage) (snapshot.RawTable, error) {
	var layout Layout
	err := json.Unmarshal(rawLayout, &layout)
	if err != nil {
		return snapshot.RawTable{Name: name}, fmt.Errorf("decode layout of %s: %w", name, err)
	}
	if layout.Hypercube == nil {
		return snapshot.RawTable{Name: name}, fmt.Errorf("%s: %w", name, ErrNoHypercube)
	}

	header := layout.Hypercube.Header()
	table := snapshot.RawTable{Name: name}
	for _, page := range layout.Hypercube.DataPages {
		for _, datapoints := range page.Matrix {
			row := make(snapshot.Row, 0, len(header))
			for i, d := range datapoints {
				if i >= len(header) {
					break
				}
				row = append(row, snapshot.Field{Label: header[i], Cell: d.cell()})
			}
			table.Rows = append(table.Rows, row)
		}
	}
	return table, nil
}
