package module

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"text/template"
)

var (
	barLevels  = []rune(" ▁▂▃▄▅▆▇█")
	bar1Levels = []rune("▁▂▃▄▅▆▇█")
)

var templateFuncs = template.FuncMap{
	"bar":   bar,
	"bar1":  bar1,
	"lower": strings.ToLower,
	"upper": strings.ToUpper,
	"round": round,
	"grade": grade,
	"span":  span,
	"spark": spark,
}

// parseFormat compiles a block template. Besides the text/template builtins
// templates see bar, bar1, spark, grade, span, lower, upper and round.
func parseFormat(name, text string) (*template.Template, error) {
	if text == "" {
		text = DefaultFormat
	}
	tmpl, err := template.New(name).Funcs(templateFuncs).Parse(text)
	if err != nil {
		return nil, invalid("module %q: bad format: %v", name, err)
	}
	return tmpl, nil
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// toFloat accepts the numeric shapes that come out of JSON, D-Bus and
// Prometheus, plus numeric strings.
func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint8:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}

func level(minV, maxV, v any, steps int) (int, error) {
	lo, err := toFloat(minV)
	if err != nil {
		return 0, err
	}
	hi, err := toFloat(maxV)
	if err != nil {
		return 0, err
	}
	x, err := toFloat(v)
	if err != nil {
		return 0, err
	}
	if hi <= lo {
		return 0, fmt.Errorf("empty range [%v, %v]", lo, hi)
	}
	if math.IsNaN(x) {
		return 0, nil
	}
	frac := (x - lo) / (hi - lo)
	frac = math.Max(0, math.Min(1, frac))
	// Truncate so a level is reached only once v is fully inside it; the
	// top glyph is reserved for max itself.
	return int(frac * float64(steps)), nil
}

// bar renders v within [min, max] as one of nine glyphs, the lowest blank
func bar(minV, maxV, v any) (string, error) {
	i, err := level(minV, maxV, v, len(barLevels)-1)
	if err != nil {
		return "", err
	}
	return string(barLevels[i]), nil
}

// bar1 is bar without the blank level
func bar1(minV, maxV, v any) (string, error) {
	i, err := level(minV, maxV, v, len(bar1Levels)-1)
	if err != nil {
		return "", err
	}
	return string(bar1Levels[i]), nil
}

// spark renders a history as one bar per value. Gaps (NaN) stay blank.
func spark(minV, maxV any, history []float64) (string, error) {
	var sb strings.Builder
	for _, v := range history {
		g, err := bar(minV, maxV, v)
		if err != nil {
			return "", err
		}
		sb.WriteString(g)
	}
	return sb.String(), nil
}

func round(places int, v any) (string, error) {
	x, err := toFloat(v)
	if err != nil {
		return "", err
	}
	return strconv.FormatFloat(x, 'f', places, 64), nil
}
