package resume

import (
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

// textRun is a stretch of glyphs drawn left to right on one baseline.
type textRun struct {
	x, y, endX, size float64
	text             strings.Builder
}

// pageLines rebuilds the visual lines of a page from its positioned glyphs.
// Lines are ordered top to bottom; runs on the same baseline are ordered
// left to right and separated by a space.
func pageLines(glyphs []pdf.Text) []string {
	var runs []*textRun
	var cur *textRun
	for _, g := range glyphs {
		if g.S == "" {
			continue
		}
		size := g.FontSize
		if size <= 0 {
			size = 1
		}
		if cur == nil || !sameBaseline(cur.y, g.Y, size) || g.X < cur.endX-size/2 {
			cur = &textRun{x: g.X, y: g.Y, endX: g.X, size: size}
			runs = append(runs, cur)
		} else if g.X-cur.endX > size/4 && !strings.HasSuffix(cur.text.String(), " ") && g.S != " " {
			cur.text.WriteByte(' ')
		}
		cur.text.WriteString(g.S)
		cur.endX = g.X + g.W
	}

	sort.SliceStable(runs, func(i, j int) bool { return runs[i].y > runs[j].y })

	var (
		lines []string
		row   []*textRun
	)
	flush := func() {
		if len(row) == 0 {
			return
		}
		sort.SliceStable(row, func(i, j int) bool { return row[i].x < row[j].x })
		parts := make([]string, 0, len(row))
		for _, r := range row {
			if s := strings.TrimSpace(r.text.String()); s != "" {
				parts = append(parts, s)
			}
		}
		if len(parts) > 0 {
			lines = append(lines, strings.Join(parts, " "))
		}
		row = row[:0]
	}
	for _, r := range runs {
		if len(row) > 0 && !sameBaseline(row[0].y, r.y, row[0].size) {
			flush()
		}
		row = append(row, r)
	}
	flush()
	return lines
}

func sameBaseline(a, b, size float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= size/2
}
