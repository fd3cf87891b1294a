package module

import (
	"fmt"
	"log/slog"
	"sort"
	"text/template"

	"github.com/c360/swaybar/protocol"
)

// Markup values a block may declare
const (
	MarkupNone  = "none"
	MarkupPango = "pango"
)

// Style is the block presentation every module kind shares. Its keys sit
// next to kind and name in the module's configuration.
type Style struct {
	// Color is applied to every non-error block the module emits
	Color      string `json:"color,omitempty"`
	Background string `json:"background,omitempty"`
	Border     string `json:"border,omitempty"`
	// Markup "pango" lets format templates emit <span> and friends
	Markup string `json:"markup,omitempty"`
	// ShortFormat renders short_text from the same view as the format
	ShortFormat         string `json:"short_format,omitempty"`
	MinWidth            any    `json:"min_width,omitempty"`
	Align               string `json:"align,omitempty"`
	Separator           *bool  `json:"separator,omitempty"`
	SeparatorBlockWidth *int   `json:"separator_block_width,omitempty"`
	// Thresholds recolour the block by its numeric value. The highest
	// threshold at or below the value wins.
	Thresholds []Threshold `json:"thresholds,omitempty"`
}

// Threshold is one colour step
type Threshold struct {
	Above float64 `json:"above"`
	Color string  `json:"color"`
}

func (s Style) validate(name string) error {
	switch s.Markup {
	case "", MarkupNone, MarkupPango:
	default:
		return invalid("module %q: unknown markup %q", name, s.Markup)
	}
	switch s.Align {
	case "", "left", "center", "right":
	default:
		return invalid("module %q: unknown align %q", name, s.Align)
	}
	switch w := s.MinWidth.(type) {
	case nil, string:
	case float64:
		if w < 0 {
			return invalid("module %q: negative min_width", name)
		}
	case int:
		if w < 0 {
			return invalid("module %q: negative min_width", name)
		}
	default:
		return invalid("module %q: min_width must be a number or a string, got %T", name, s.MinWidth)
	}
	for i, t := range s.Thresholds {
		if t.Color == "" {
			return invalid("module %q: threshold %d has no color", name, i)
		}
	}
	if s.ShortFormat != "" {
		if _, err := parseFormat(name, s.ShortFormat); err != nil {
			return err
		}
	}
	return nil
}

// styler turns rendered text into a block according to a Style
type styler struct {
	Style
	short      *template.Template
	thresholds []Threshold
}

func newStyler(name string, s Style) (styler, error) {
	st := styler{Style: s}
	if s.ShortFormat != "" {
		tmpl, err := parseFormat(name+".short", s.ShortFormat)
		if err != nil {
			return st, err
		}
		st.short = tmpl
	}
	st.thresholds = append([]Threshold(nil), s.Thresholds...)
	sort.SliceStable(st.thresholds, func(i, j int) bool {
		return st.thresholds[i].Above < st.thresholds[j].Above
	})
	return st, nil
}

// block builds the styled block for text. view is what the short format
// renders from; value picks the threshold colour when it is numeric.
func (st styler) block(logger *slog.Logger, text string, view, value any) protocol.Block {
	b := protocol.Block{
		FullText:            text,
		Color:               st.Color,
		Background:          st.Background,
		Border:              st.Border,
		Markup:              st.Markup,
		MinWidth:            st.MinWidth,
		Align:               st.Align,
		Separator:           st.Separator,
		SeparatorBlockWidth: st.SeparatorBlockWidth,
	}
	if color := st.thresholdColor(value); color != "" {
		b.Color = color
	}
	if st.short != nil {
		short, err := render(st.short, view)
		if err != nil {
			logger.Warn("Short format failed", "error", err)
		} else {
			b.ShortText = short
		}
	}
	return b
}

func (st styler) thresholdColor(value any) string {
	if len(st.thresholds) == 0 || value == nil {
		return ""
	}
	x, err := toFloat(value)
	if err != nil {
		return ""
	}
	color := ""
	for _, t := range st.thresholds {
		if x < t.Above {
			break
		}
		color = t.Color
	}
	return color
}

// grade names the colour a value earns against two limits: "" below warn,
// "orange" from warn, "red" from crit.
func grade(warn, crit, v any) (string, error) {
	w, err := toFloat(warn)
	if err != nil {
		return "", err
	}
	c, err := toFloat(crit)
	if err != nil {
		return "", err
	}
	x, err := toFloat(v)
	if err != nil {
		return "", err
	}
	switch {
	case x >= c:
		return "red", nil
	case x >= w:
		return "orange", nil
	default:
		return "", nil
	}
}

// span wraps text in a pango span of the given colour. An empty colour
// leaves the text alone so it can be chained after grade.
func span(color string, text any) string {
	s := fmt.Sprint(text)
	if color == "" {
		return s
	}
	return `<span color="` + color + `">` + s + `</span>`
}
