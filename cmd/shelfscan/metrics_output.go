package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"shelfscan/internal/logging"
)

const metricPrefix = "shelfscan_dispatch_"

type metricRow struct {
	Name   string
	Labels string
	Value  float64
}

func addMetricsFlag(cmd *cobra.Command, enabled *bool) {
	cmd.Flags().BoolVar(enabled, "metrics", false, "Print dispatch counters to stderr when done")
}

// writeMetrics prints the counters gathered during the command. It runs after
// the command's own output, success or not.
func (a *app) writeMetrics(out io.Writer) {
	rows, err := gatherMetricRows(a.registry)
	if err != nil {
		a.logger.Warn("gather metrics failed", logging.Error(err))
		return
	}
	table := make([][]string, 0, len(rows))
	for _, row := range rows {
		table = append(table, []string{row.Name, row.Labels, strconv.FormatFloat(row.Value, 'f', -1, 64)})
	}
	fmt.Fprintln(out, renderTable(out, []string{"Metric", "Labels", "Value"}, table, []columnAlignment{alignLeft, alignLeft, alignRight}))
}

// gatherMetricRows flattens counters and gauges. Histograms contribute their
// sample count.
func gatherMetricRows(g prometheus.Gatherer) ([]metricRow, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, err
	}
	var rows []metricRow
	for _, family := range families {
		name := strings.TrimPrefix(family.GetName(), metricPrefix)
		for _, metric := range family.GetMetric() {
			pairs := make([]string, 0, len(metric.GetLabel()))
			for _, label := range metric.GetLabel() {
				pairs = append(pairs, label.GetName()+"="+label.GetValue())
			}
			row := metricRow{Name: name, Labels: strings.Join(pairs, ",")}
			switch {
			case metric.GetCounter() != nil:
				row.Value = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				row.Value = metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				row.Name += "_count"
				row.Value = float64(metric.GetHistogram().GetSampleCount())
			default:
				continue
			}
			rows = append(rows, row)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Name != rows[j].Name {
			return rows[i].Name < rows[j].Name
		}
		return rows[i].Labels < rows[j].Labels
	})
	return rows, nil
}
