package bot

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Column widths for the monospace chart tables.
const (
	tblNameWidth = 22
	tblWideWidth = tblNameWidth*2 + 1
)

// rymSearch builds a rateyourmusic search link. searchtype narrows the
// result kind: "a" for artists, "l" for releases.
func rymSearch(query, searchtype string) string {
	u := "https://rateyourmusic.com/search?searchterm=" + url.QueryEscape(query)
	if searchtype != "" {
		u += "&searchtype=" + searchtype
	}
	return u
}

// mkLinks renders a label→URL map as one "[label](url) | [label](url)"
// row, labels in sorted order so output is stable.
func mkLinks(urls map[string]string) string {
	labels := make([]string, 0, len(urls))
	for label := range urls {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	var b strings.Builder
	for i, label := range labels {
		if i > 0 {
			b.WriteString(" | ")
		}
		fmt.Fprintf(&b, "[%s](%s)", label, urls[label])
	}
	return b.String()
}

// makeTable renders rows as a monospace code block. Each width entry pads
// or truncates its column; a negative width means right-aligned. The
// header row has its spaces replaced by underscores so it stays readable
// after Discord collapses whitespace in narrow clients.
func makeTable(widths []int, header []string, rows [][]string) string {
	var b strings.Builder
	b.WriteString("```\n")
	b.WriteString(strings.ReplaceAll(formatRow(widths, header), " ", "_"))
	for _, row := range rows {
		b.WriteString(formatRow(widths, row))
	}
	b.WriteString("```")
	return b.String()
}

func formatRow(widths []int, cells []string) string {
	parts := make([]string, len(widths))
	for i, w := range widths {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		parts[i] = fitCell(cell, w)
	}
	return strings.Join(parts, "|") + "\n"
}

// fitCell pads cell to the given width, truncating when it is too long.
// Negative widths right-align.
func fitCell(cell string, width int) string {
	right := width < 0
	if right {
		width = -width
	}
	runes := []rune(cell)
	if len(runes) > width {
		return string(runes[:width])
	}
	pad := strings.Repeat(" ", width-len(runes))
	if right {
		return pad + cell
	}
	return cell + pad
}

// chartTable renders a top-N chart with artist and title columns.
func chartTable(header []string, rows [][]string) string {
	return makeTable([]int{-2, tblNameWidth, tblNameWidth, -4}, header, rows)
}

// artistChartTable renders a top-N chart with a single wide name column.
func artistChartTable(header []string, rows [][]string) string {
	return makeTable([]int{-2, tblWideWidth, -4}, header, rows)
}
