package alert

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/GoomerJaspartap/diagnostic-controller/internal/diagnostic"
)

const timestampLayout = "02 January, 2006 15:04:05"

var stateColors = map[diagnostic.State]string{
	diagnostic.StatePass:     "#2ecc71",
	diagnostic.StateFail:     "#e74c3c",
	diagnostic.StateNoStatus: "#7f8c8d",
}

// RenderMessage builds the plain-text and HTML bodies for a set of
// conditions. Conditions are grouped by diagnostic type; the plain text is
// also used as the SMS body.
func RenderMessage(subject, message string, now time.Time, conditions []Condition) (string, string) {
	groups, order := groupByType(conditions)
	return renderText(message, groups, order), renderHTML(subject, message, now, groups, order)
}

func groupByType(conditions []Condition) (map[string][]Condition, []string) {
	groups := make(map[string][]Condition)
	var order []string
	for _, c := range conditions {
		if _, ok := groups[c.Type]; !ok {
			order = append(order, c.Type)
		}
		groups[c.Type] = append(groups[c.Type], c)
	}
	return groups, order
}

func renderText(message string, groups map[string][]Condition, order []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", message)
	for _, dtype := range order {
		fmt.Fprintf(&b, "%s Diagnostics:\n", dtype)
		for _, c := range groups[dtype] {
			fmt.Fprintf(&b, "%s - %s %s %s (History: %d)\n",
				c.Code, c.Description, c.State, formatTimestamp(c.LastFailureAt), c.HistoryCount)
			if c.Prediction != "" {
				fmt.Fprintf(&b, "  %s\n", c.Prediction)
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func renderHTML(subject, message string, now time.Time, groups map[string][]Condition, order []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>%s</title></head>
<body style="background:#f4f6fa;font-family:Arial,Helvetica,sans-serif;color:#222;margin:0;padding:0;">
<div style="max-width:600px;margin:40px auto;background:#fff;border-radius:16px;border:1px solid #e0e6ed;overflow:hidden;">
<div style="padding:32px;">
<h1 style="color:#1a2a44;font-size:28px;margin-bottom:18px;text-align:center;">%s</h1>
<p style="font-size:16px;margin-bottom:24px;text-align:center;">%s</p>
`, html.EscapeString(subject), html.EscapeString(subject), html.EscapeString(message))

	for _, dtype := range order {
		fmt.Fprintf(&b, `<h2 style="color:#1a2a44;font-size:20px;margin:30px 0 15px 0;border-left:4px solid #1a2a44;padding-left:12px;">%s Diagnostics</h2>
<table style="width:100%%;border-collapse:collapse;font-size:15px;margin-bottom:32px;">
<thead>
<tr style="background:#1a2a44;color:#fff;">
<th style="padding:14px 10px;text-align:left;">Code</th>
<th style="padding:14px 10px;text-align:left;">Description</th>
<th style="padding:14px 10px;text-align:left;">State</th>
<th style="padding:14px 10px;text-align:left;">Last Failure</th>
<th style="padding:14px 10px;text-align:left;">History Count</th>
</tr>
</thead>
<tbody>
`, html.EscapeString(dtype))

		for i, c := range groups[dtype] {
			background := "#f9f9f9"
			if i%2 == 1 {
				background = "#fff"
			}
			color, ok := stateColors[c.State]
			if !ok {
				color = "#7f8c8d"
			}
			fmt.Fprintf(&b, `<tr style="background:%s;">
<td style="padding:12px 10px;border-bottom:1px solid #e0e6ed;">%s</td>
<td style="padding:12px 10px;border-bottom:1px solid #e0e6ed;">%s</td>
<td style="padding:12px 10px;border-bottom:1px solid #e0e6ed;color:%s;font-weight:600;">%s</td>
<td style="padding:12px 10px;border-bottom:1px solid #e0e6ed;">%s</td>
<td style="padding:12px 10px;border-bottom:1px solid #e0e6ed;">%d</td>
</tr>
`, background, html.EscapeString(c.Code), html.EscapeString(c.Description), color, c.State,
				formatTimestamp(c.LastFailureAt), c.HistoryCount)

			if c.Prediction != "" {
				fmt.Fprintf(&b, `<tr style="background:%s;">
<td colspan="5" style="padding:6px 10px;border-bottom:1px solid #e0e6ed;color:#7f8c8d;font-size:13px;">%s</td>
</tr>
`, background, html.EscapeString(c.Prediction))
			}
		}
		b.WriteString("</tbody>\n</table>\n")
	}

	fmt.Fprintf(&b, `<div style="margin-top:32px;padding-top:24px;border-top:1px solid #e0e6ed;text-align:center;color:#7f8c8d;font-size:13px;">
Generated on %s. Do not reply to this email.
</div>
</div>
</div>
</body>
</html>
`, now.Format(timestampLayout))

	return b.String()
}

func formatTimestamp(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(timestampLayout)
}
