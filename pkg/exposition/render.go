// Package exposition renders registry snapshots for pull-based scrapers: the
// text exposition format, a JSON form for debugging, and the HTTP/WebSocket
// endpoints that serve them.
package exposition

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/meterhub/meterhub/pkg/metrics"
)

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

var helpEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`)

// metricNameEscaper maps characters that are legal in family names but not in
// exposition metric names. Dots are common in dotted metric names.
var metricNameEscaper = strings.NewReplacer(".", "_", "-", "_")

// RenderText renders families in the text exposition format: a # HELP line
// when help text is present, a # TYPE line, then one line per sample. Sample
// values and any numeric label values are already in canonical text, so the
// output is reproducible across runs for the same snapshot.
func RenderText(families []metrics.FamilySamples) string {
	var b strings.Builder
	for _, fs := range families {
		name := metricNameEscaper.Replace(fs.Name)
		if fs.Help != "" {
			fmt.Fprintf(&b, "# HELP %s %s\n", name, helpEscaper.Replace(fs.Help))
		}
		typ := fs.Type
		if typ == "" {
			typ = metrics.TypeGauge
		}
		fmt.Fprintf(&b, "# TYPE %s %s\n", name, typ)

		for _, s := range fs.Samples {
			b.WriteString(metricNameEscaper.Replace(s.Name))
			if len(s.LabelKeys) > 0 {
				b.WriteByte('{')
				for i, k := range s.LabelKeys {
					if i > 0 {
						b.WriteByte(',')
					}
					fmt.Fprintf(&b, `%s="%s"`, k, labelEscaper.Replace(s.LabelValues[i]))
				}
				b.WriteByte('}')
			}
			b.WriteByte(' ')
			b.WriteString(metrics.FormatFloat(s.Value))
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// RenderJSON renders families as indented JSON.
func RenderJSON(families []metrics.FamilySamples) (string, error) {
	data, err := json.MarshalIndent(families, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal metrics to JSON: %w", err)
	}
	return string(data), nil
}
