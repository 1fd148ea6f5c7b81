package metric

import (
	"bufio"
	"strconv"
	"strings"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

var (
	helpEscaper  = strings.NewReplacer(`\`, `\\`, "\n", `\n`)
	labelEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`, `"`, `\"`)
)

// writeFamily writes one metric family in text exposition format.
//
// Counter, gauge and untyped samples are printed in plain decimal, so a
// value such as 1234567 never turns into 1.234567e+06. Other types go
// through expfmt.
func writeFamily(w *bufio.Writer, mf *dto.MetricFamily) error {
	var value func(*dto.Metric) float64
	switch mf.GetType() {
	case dto.MetricType_COUNTER:
		value = func(m *dto.Metric) float64 { return m.GetCounter().GetValue() }
	case dto.MetricType_GAUGE:
		value = func(m *dto.Metric) float64 { return m.GetGauge().GetValue() }
	case dto.MetricType_UNTYPED:
		value = func(m *dto.Metric) float64 { return m.GetUntyped().GetValue() }
	default:
		_, err := expfmt.MetricFamilyToText(w, mf)
		return err
	}

	name := mf.GetName()
	if mf.Help != nil {
		w.WriteString("# HELP ")
		w.WriteString(name)
		w.WriteByte(' ')
		helpEscaper.WriteString(w, mf.GetHelp())
		w.WriteByte('\n')
	}
	w.WriteString("# TYPE ")
	w.WriteString(name)
	w.WriteByte(' ')
	w.WriteString(strings.ToLower(mf.GetType().String()))
	w.WriteByte('\n')

	for _, m := range mf.GetMetric() {
		w.WriteString(name)
		writeLabels(w, m.GetLabel())
		w.WriteByte(' ')
		w.WriteString(formatValue(value(m)))
		w.WriteByte('\n')
	}
	return nil
}

// writeLabels writes {k="v",...}, or nothing when there are no labels.
func writeLabels(w *bufio.Writer, labels []*dto.LabelPair) {
	if len(labels) == 0 {
		return
	}
	w.WriteByte('{')
	for i, lp := range labels {
		if i > 0 {
			w.WriteByte(',')
		}
		w.WriteString(lp.GetName())
		w.WriteString(`="`)
		labelEscaper.WriteString(w, lp.GetValue())
		w.WriteByte('"')
	}
	w.WriteByte('}')
}

// formatValue prints v without an exponent. Infinities and NaN come out
// as +Inf, -Inf and NaN.
func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
