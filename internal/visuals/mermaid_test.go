package visuals

import (
	"strings"
	"testing"
)

func TestGeneratePieChart(t *testing.T) {
	chart := GeneratePieChart("Hours per user", []Slice{
		{Label: "Ann", Value: 7.5},
		{Label: "Idle", Value: 0},
		{Label: `Bo "B" Stone`, Value: 1.25},
	})

	for _, want := range []string{
		"```mermaid\npie showData title Hours per user\n",
		`"Ann" : 7.50`,
		`"Bo 'B' Stone" : 1.25`,
	} {
		if !strings.Contains(chart, want) {
			t.Errorf("chart missing %q:\n%s", want, chart)
		}
	}
	if strings.Contains(chart, "Idle") {
		t.Errorf("zero slice should be dropped:\n%s", chart)
	}
}

func TestGeneratePieChart_Empty(t *testing.T) {
	if got := GeneratePieChart("x", []Slice{{Label: "a", Value: 0}}); got != "" {
		t.Errorf("expected no chart, got %q", got)
	}
}

func TestGenerateBarChart(t *testing.T) {
	chart := GenerateBarChart("Hours per issue type", "Hours", []Slice{{Label: "Story", Value: 10}, {Label: "Bug", Value: 2.5}})
	for _, want := range []string{
		`x-axis ["Story", "Bug"]`,
		`y-axis "Hours" 0 --> 12`,
		"bar [10.00, 2.50]",
	} {
		if !strings.Contains(chart, want) {
			t.Errorf("chart missing %q:\n%s", want, chart)
		}
	}
	if GenerateBarChart("x", "y", nil) != "" {
		t.Error("expected no chart for no data")
	}
}
