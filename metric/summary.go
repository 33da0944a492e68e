package metric

import (
	"sort"
	"strings"

	dto "github.com/prometheus/client_model/go"

	"github.com/c360/nodekit/errors"
)

// CounterTotals gathers every counter family whose name starts with prefix
// and sums it across label sets. Histograms and gauges are skipped.
func CounterTotals(r *MetricsRegistry, prefix string) (map[string]float64, error) {
	families, err := r.PrometheusRegistry().Gather()
	if err != nil {
		return nil, errors.WrapTransient(err, "MetricsRegistry", "CounterTotals", "gather metrics")
	}
	return sumCounters(families, prefix), nil
}

func sumCounters(families []*dto.MetricFamily, prefix string) map[string]float64 {
	totals := make(map[string]float64)
	for _, family := range families {
		if family.GetType() != dto.MetricType_COUNTER || !strings.HasPrefix(family.GetName(), prefix) {
			continue
		}
		var sum float64
		for _, m := range family.GetMetric() {
			sum += m.GetCounter().GetValue()
		}
		totals[family.GetName()] = sum
	}
	return totals
}

// SummaryArgs flattens totals into sorted slog key/value pairs with prefix
// trimmed from the names. Zero totals are left out.
func SummaryArgs(totals map[string]float64, prefix string) []any {
	names := make([]string, 0, len(totals))
	for name, v := range totals {
		if v != 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	args := make([]any, 0, 2*len(names))
	for _, name := range names {
		args = append(args, strings.TrimPrefix(name, prefix), totals[name])
	}
	return args
}
