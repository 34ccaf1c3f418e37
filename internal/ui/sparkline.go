package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var sparkChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Sparkline renders a mini price trend graph.
type Sparkline struct {
	data  []float64
	width int
	color lipgloss.Color
}

func NewSparkline(width int) *Sparkline {
	return &Sparkline{
		width: width,
		color: DefaultPalette().Primary,
	}
}

// Push appends a data point, keeping only the last width points.
func (s *Sparkline) Push(value float64) {
	s.data = append(s.data, value)
	if len(s.data) > s.width {
		s.data = s.data[len(s.data)-s.width:]
	}
}

// SetWidth resizes the sparkline, trimming history if needed.
func (s *Sparkline) SetWidth(width int) {
	s.width = width
	if len(s.data) > width {
		s.data = s.data[len(s.data)-width:]
	}
}

// SetColor sets the rendering color.
func (s *Sparkline) SetColor(color lipgloss.Color) {
	s.color = color
}

// Trend returns an arrow for the latest price direction.
func (s *Sparkline) Trend() string {
	if len(s.data) < 2 {
		return "→"
	}
	last, prev := s.data[len(s.data)-1], s.data[len(s.data)-2]
	switch {
	case last > prev:
		return "↗"
	case last < prev:
		return "↘"
	default:
		return "→"
	}
}

// View renders the sparkline as a styled string.
func (s *Sparkline) View() string {
	style := lipgloss.NewStyle().Foreground(s.color)
	if len(s.data) == 0 {
		return style.Render(strings.Repeat("▁", s.width))
	}

	min, max := s.data[0], s.data[0]
	for _, v := range s.data {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	var b strings.Builder
	for _, v := range s.data {
		idx := 3 // flat line when all values match
		if max > min {
			idx = int((v - min) / (max - min) * float64(len(sparkChars)-1))
			if idx < 0 {
				idx = 0
			}
			if idx >= len(sparkChars) {
				idx = len(sparkChars) - 1
			}
		}
		b.WriteRune(sparkChars[idx])
	}
	for i := len(s.data); i < s.width; i++ {
		b.WriteRune(' ')
	}
	return style.Render(b.String())
}
