package google

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	ports "envelopes/internal/sheets"
)

// lastColumn is the column of the last Header field.
const lastColumn = "J"

func headerRow() []any {
	out := make([]any, len(ports.Header))
	for i, h := range ports.Header {
		out[i] = h
	}
	return out
}

// findRow returns the 1-based sheet row holding code, or 0.
func findRow(values [][]any, code string) int {
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(row[0])) == code {
			return i + 1
		}
	}
	return 0
}

// parseRows converts sheet values into summaries, skipping the header,
// blank rows and rows that do not parse.
func parseRows(values [][]any) []ports.Summary {
	var out []ports.Summary
	for i, row := range values {
		cols := toStrings(row)
		if len(cols) == 0 || cols[0] == "" {
			continue
		}
		if i == 0 && strings.EqualFold(cols[0], ports.Header[0]) {
			continue
		}
		if s, ok := parseRow(cols); ok {
			out = append(out, s)
		}
	}
	return out
}

func parseRow(cols []string) (ports.Summary, bool) {
	if len(cols) < 7 {
		return ports.Summary{}, false
	}
	target, err1 := strconv.ParseInt(cols[3], 10, 64)
	saved, err2 := strconv.ParseInt(cols[4], 10, 64)
	opened, err3 := strconv.Atoi(cols[5])
	days, err4 := strconv.Atoi(cols[6])
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return ports.Summary{}, false
	}
	s := ports.Summary{
		Code:          cols[0],
		Currency:      cols[1],
		Distribution:  cols[2],
		Target:        target,
		Saved:         saved,
		DaysCompleted: opened,
		Days:          days,
	}
	if v := safeGet(cols, 7); v != "" {
		// Sheets may render the decimal separator per locale.
		s.Percentage, _ = strconv.ParseFloat(strings.ReplaceAll(v, ",", "."), 64)
	}
	if v := safeGet(cols, 8); v != "" {
		s.Achievements = strings.Split(v, ",")
	}
	if v := safeGet(cols, 9); v != "" {
		s.UpdatedAt, _ = time.Parse(time.RFC3339, v)
	}
	return s, true
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}
