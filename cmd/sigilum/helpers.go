package main

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"sigilum/internal/recipe"
)

var titleCaser = cases.Title(language.Und)

// statusLabel renders ACCEPTED as Accepted.
func statusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return "-"
	}
	return titleCaser.String(strings.ToLower(status))
}

func formatScore(v float64) string {
	return fmt.Sprintf("%.4f", v)
}

func formatOptionalScore(v *float64) string {
	if v == nil {
		return "-"
	}
	return formatScore(*v)
}

func formatMs(ms float64) string {
	if ms >= 1000 {
		return fmt.Sprintf("%.2fs", ms/1000)
	}
	return fmt.Sprintf("%.1fms", ms)
}

// formatVarying renders phase → params as "Phase(k=v, ...)" in phase order.
func formatVarying(steps recipe.Definition, varying map[string]recipe.Params) string {
	if len(varying) == 0 {
		return "-"
	}
	var parts []string
	seen := make(map[string]bool, len(varying))
	for _, phase := range steps.Phases() {
		params, ok := varying[phase]
		if !ok || seen[phase] {
			continue
		}
		seen[phase] = true
		parts = append(parts, fmt.Sprintf("%s(%s)", phase, formatParams(params)))
	}
	return strings.Join(parts, " ")
}

func formatParams(params recipe.Params) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%v", k, params[k]))
	}
	return strings.Join(pairs, ", ")
}

func humanBytes(v int64) string {
	const unit = 1024
	if v < unit {
		return fmt.Sprintf("%d B", v)
	}
	div := int64(unit)
	exp := 0
	for n := v / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	value := float64(v) / float64(div)
	return fmt.Sprintf("%.1f %ciB", value, "KMGTPEZY"[exp])
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
