package monitor

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

const (
	ansiReset    = "\033[0m"
	ansiRed      = "\033[31m"
	ansiGreen    = "\033[32m"
	ansiYellow   = "\033[33m"
	ansiDim      = "\033[2m"
	ansiClearEOL = "\033[K"
)

func colorize(s, c string) string { return c + s + ansiReset }

var (
	thousand = decimal.NewFromInt(1_000)
	million  = decimal.NewFromInt(1_000_000)
	billion  = decimal.NewFromInt(1_000_000_000)
	cent     = decimal.New(1, -2)
)

// FormatPrice
//
//	>= 1000  千分位，2 位小数
//	>= 1     2 位小数
//	>= 0.01  4 位小数
//	其它     6 位小数
func FormatPrice(price float64) string {
	d := decimal.NewFromFloat(price)
	switch {
	case d.GreaterThanOrEqual(thousand):
		return groupThousands(d.StringFixed(2))
	case d.GreaterThanOrEqual(decimal.NewFromInt(1)):
		return d.StringFixed(2)
	case d.GreaterThanOrEqual(cent):
		return d.StringFixed(4)
	default:
		return d.StringFixed(6)
	}
}

// FormatVolume 1.23B / 4.5M / 6.7K / 890
func FormatVolume(volume float64) string {
	d := decimal.NewFromFloat(volume)
	switch {
	case d.GreaterThanOrEqual(billion):
		return d.Div(billion).StringFixed(2) + "B"
	case d.GreaterThanOrEqual(million):
		return d.Div(million).StringFixed(1) + "M"
	case d.GreaterThanOrEqual(thousand):
		return d.Div(thousand).StringFixed(1) + "K"
	default:
		return d.StringFixed(0)
	}
}

// FormatChange signed percentage with 2 decimals, e.g. +2.50%
func FormatChange(change float64) string {
	d := decimal.NewFromFloat(change)
	s := d.StringFixed(2)
	if !d.IsNegative() {
		s = "+" + s
	}
	return s + "%"
}

func groupThousands(fixed string) string {
	intPart, frac, _ := strings.Cut(fixed, ".")
	var n int64
	if _, err := fmt.Sscan(intPart, &n); err != nil {
		return fixed
	}
	out := humanize.Comma(n)
	if frac != "" {
		out += "." + frac
	}
	return out
}

type Formatter struct {
	Title string
}

func NewFormatter(title string) *Formatter {
	if title == "" {
		title = "COINFEED"
	}
	return &Formatter{Title: title}
}

type RenderMode int

const (
	RenderLive RenderMode = iota
	RenderSnapshot
)

// Render 一行输出；live 模式以 \r 开头、清除行尾，覆盖上一行
func (f *Formatter) Render(rows []Row, connected bool, mode RenderMode) string {
	var sb strings.Builder
	if mode == RenderLive {
		sb.WriteString("\r")
	}

	sb.WriteString(colorize("["+f.Title+"] ", ansiDim))
	if !connected {
		sb.WriteString(colorize("(offline) ", ansiRed))
	}
	if len(rows) == 0 {
		sb.WriteString(colorize("waiting for prices", ansiDim))
	}

	for i, r := range rows {
		if i > 0 {
			sb.WriteString(colorize("  ||  ", ansiDim))
		}

		pCol := ansiYellow
		switch r.Dir {
		case DirUp:
			pCol = ansiGreen
		case DirDown:
			pCol = ansiRed
		}
		cCol := ansiGreen
		if r.Tick.Change24h < 0 {
			cCol = ansiRed
		}

		sb.WriteString(r.Symbol)
		sb.WriteString(" ")
		sb.WriteString(colorize("$"+FormatPrice(r.Tick.Price), pCol))
		sb.WriteString(" ")
		sb.WriteString(colorize(FormatChange(r.Tick.Change24h), cCol))
		sb.WriteString(" ")
		sb.WriteString(colorize("vol "+FormatVolume(r.Tick.Volume), ansiDim))
	}

	if mode == RenderLive {
		sb.WriteString(ansiClearEOL)
	}
	return sb.String()
}
