package main

import (
	"fmt"

	"github.com/fatih/color"

	"github.com/ozarkconnect/linkpulse/internal/codec"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// colorGrade renders a bufferbloat or use-case grade string with a color
// matching its position on the grade's own scale, rather than a single
// good/bad threshold: grades are already the graded value.
func colorGrade(grade string) string {
	switch grade {
	case "A+", "A", "Excellent":
		return green(grade)
	case "B", "C", "Good", "Fair":
		return yellow(grade)
	case "D", "F", "Poor", "Very Poor":
		return red(grade)
	default:
		return grade
	}
}

// colorLatency colors a raw millisecond figure by fixed bands: under 30 ms
// green, under 100 ms yellow, otherwise red. The bands are absolute, not the
// ratio-to-idle bands a bufferbloat grade is derived from.
func colorLatency(ms float64) string {
	s := fmt.Sprintf("%.1fms", ms)
	switch {
	case ms < 30:
		return green(s)
	case ms < 100:
		return yellow(s)
	default:
		return red(s)
	}
}

func colorMbps(mbps float64) string {
	s := fmt.Sprintf("%.2f Mbps", mbps)
	switch {
	case mbps >= 50:
		return green(s)
	case mbps >= 10:
		return yellow(s)
	default:
		return red(s)
	}
}

// colorNewUnderline is the header formatter rodaine/table expects: cyan,
// underlined column names.
func colorNewUnderline() func(format string, a ...interface{}) string {
	return color.New(color.FgCyan, color.Underline).SprintfFunc()
}

func gradeString(kind string, g codec.Grade) string {
	if kind == "bufferbloat" {
		return codec.WireToBufferbloatGrade(g)
	}
	return codec.WireToUseCaseGrade(g)
}
