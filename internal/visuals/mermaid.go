package visuals

import (
	"fmt"
	"math"
	"strings"
)

// Slice is one labelled value of a chart.
type Slice struct {
	Label string
	Value float64
}

// GeneratePieChart creates a Mermaid pie chart. Slices without a positive value are
// left out since Mermaid rejects them.
func GeneratePieChart(title string, slices []Slice) string {
	var rows []string
	for _, s := range slices {
		if s.Value <= 0 {
			continue
		}
		rows = append(rows, fmt.Sprintf("    %q : %.2f", escape(s.Label), s.Value))
	}
	if len(rows) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString(fmt.Sprintf("pie showData title %s\n", escape(title)))
	for _, r := range rows {
		sb.WriteString(r + "\n")
	}
	sb.WriteString("```")
	return sb.String()
}

// GenerateBarChart creates a Mermaid xychart-beta bar chart.
func GenerateBarChart(title, yLabel string, slices []Slice) string {
	if len(slices) == 0 {
		return ""
	}

	var labels []string
	var values []string
	maxVal := 0.0
	for _, s := range slices {
		labels = append(labels, fmt.Sprintf("\"%s\"", escape(s.Label)))
		values = append(values, fmt.Sprintf("%.2f", s.Value))
		if s.Value > maxVal {
			maxVal = s.Value
		}
	}

	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString("xychart-beta\n")
	sb.WriteString(fmt.Sprintf("    title \"%s\"\n", escape(title)))
	sb.WriteString(fmt.Sprintf("    x-axis [%s]\n", strings.Join(labels, ", ")))
	// Headroom above the tallest bar.
	sb.WriteString(fmt.Sprintf("    y-axis \"%s\" 0 --> %d\n", escape(yLabel), int(math.Ceil(math.Max(1, maxVal*1.2)))))
	sb.WriteString(fmt.Sprintf("    bar [%s]\n", strings.Join(values, ", ")))
	sb.WriteString("```")
	return sb.String()
}

func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}
