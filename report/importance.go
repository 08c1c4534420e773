// Package report renders summaries of a fitted forest: a ranked feature
// importance table and its bar chart.
package report

import (
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/rforest/pkg/errors"
)

// FeatureImportance pairs a feature name with its importance.
type FeatureImportance struct {
	Name       string
	Importance float64
}

// Rank returns the features ordered by decreasing importance. Equal
// importances keep their column order.
func Rank(names []string, importances []float64) ([]FeatureImportance, error) {
	if len(names) != len(importances) {
		return nil, errors.NewDimensionError("report.Rank", len(names), len(importances), 1)
	}
	out := make([]FeatureImportance, len(names))
	for i := range names {
		out[i] = FeatureImportance{Name: names[i], Importance: importances[i]}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Importance > out[j].Importance })
	return out, nil
}

// ImportancePlot builds a bar chart of the ranked importances.
func ImportancePlot(names []string, importances []float64) (*plot.Plot, error) {
	ranked, err := Rank(names, importances)
	if err != nil {
		return nil, err
	}
	if len(ranked) == 0 {
		return nil, errors.NewValueError("report.ImportancePlot", "no features to plot")
	}

	values := make(plotter.Values, len(ranked))
	labels := make([]string, len(ranked))
	for i, fi := range ranked {
		values[i] = fi.Importance
		labels[i] = fi.Name
	}

	p := plot.New()
	p.Title.Text = "Feature importances"
	p.Y.Label.Text = "Mean impurity decrease"
	p.Y.Min = 0

	bars, err := plotter.NewBarChart(values, vg.Points(20))
	if err != nil {
		return nil, errors.Wrap(err, "build bar chart")
	}
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)
	p.NominalX(labels...)
	return p, nil
}

// SaveImportancePlot writes the chart to path. The format follows the file
// extension (png, svg, pdf...).
func SaveImportancePlot(path string, names []string, importances []float64) error {
	p, err := ImportancePlot(names, importances)
	if err != nil {
		return err
	}
	width := vg.Length(len(names))*vg.Centimeter + 6*vg.Centimeter
	if err := p.Save(width, 4*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "save importance plot %s", path)
	}
	return nil
}
