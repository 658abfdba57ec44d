package export

import (
	"bytes"
	"fmt"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/okian/festrank/internal/domain/types"
)

const (
	chartWidth    = 1024
	chartHeight   = 480
	chartMaxBars  = 10
	labelMaxRunes = 14

	placeholderWidth  = 400
	placeholderHeight = 200
)

// TopSongsChart renders the top songs of a breakdown as a PNG bar chart.
func TopSongsChart(title string, songs []types.SongEntry) ([]byte, error) {
	if len(songs) == 0 {
		return placeholder(title + ": no scores recorded")
	}
	if len(songs) > chartMaxBars {
		songs = songs[:chartMaxBars]
	}

	bars := make([]chart.Value, len(songs))
	for i, s := range songs {
		bars[i] = chart.Value{Label: shorten(s.Song), Value: s.Score}
	}

	graph := chart.BarChart{
		Title:    title,
		Width:    chartWidth,
		Height:   chartHeight,
		BarWidth: 60,
		Background: chart.Style{
			Padding: chart.Box{Top: 40},
		},
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: songs[0].Score * 1.1},
		},
		Bars: bars,
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}
	return buf.Bytes(), nil
}

// placeholder draws msg centred on a blank canvas. It talks to the renderer
// directly because a chart without series refuses to render.
func placeholder(msg string) ([]byte, error) {
	r, err := chart.PNG(placeholderWidth, placeholderHeight)
	if err != nil {
		return nil, fmt.Errorf("render placeholder: %w", err)
	}
	font, err := chart.GetDefaultFont()
	if err != nil {
		return nil, fmt.Errorf("render placeholder: %w", err)
	}
	r.SetDPI(chart.DefaultDPI)

	r.SetFillColor(drawing.ColorWhite)
	r.MoveTo(0, 0)
	r.LineTo(placeholderWidth, 0)
	r.LineTo(placeholderWidth, placeholderHeight)
	r.LineTo(0, placeholderHeight)
	r.Close()
	r.Fill()

	r.SetFont(font)
	r.SetFontColor(drawing.ColorBlack)
	r.SetFontSize(12.0)
	tb := r.MeasureText(msg)
	r.Text(msg, (placeholderWidth-tb.Width())/2, (placeholderHeight+tb.Height())/2)

	var buf bytes.Buffer
	if err := r.Save(&buf); err != nil {
		return nil, fmt.Errorf("render placeholder: %w", err)
	}
	return buf.Bytes(), nil
}

func shorten(s string) string {
	r := []rune(s)
	if len(r) <= labelMaxRunes {
		return s
	}
	return string(r[:labelMaxRunes-1]) + "…"
}
