package broadcast

import "strings"

// buttonSep is the literal label/url separator in freeform button text.
const buttonSep = " - "

// ParseButtons turns freeform text into a ButtonRow.
//
// Per line: split on the FIRST " - "; left trimmed is the label, right
// trimmed is the target, which must start with http:// or https://. Lines
// failing either condition are silently dropped, so admins can comment lines
// out. Zero valid lines yield an empty row, not an error.
func ParseButtons(text string) ButtonRow {
	var row ButtonRow
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		if !strings.Contains(line, buttonSep) {
			continue
		}
		parts := strings.SplitN(line, buttonSep, 2)
		label := strings.TrimSpace(parts[0])
		url := strings.TrimSpace(parts[1])
		if label == "" {
			continue
		}
		if !strings.HasPrefix(url, "https://") && !strings.HasPrefix(url, "http://") {
			continue
		}
		row = append(row, Button{Label: label, URL: url})
	}
	return row
}
