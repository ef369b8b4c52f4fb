// Package output renders CLI output: status lines, key/value blocks, room
// tables and search hits, coloured when writing to a terminal.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Palette.
const (
	ColorAccent = "154"
	ColorDim    = "245"
	ColorBorder = "238"
	ColorRed    = "196"
	ColorYellow = "220"
)

// Styles holds the lipgloss styles a Writer uses.
type Styles struct {
	Header  lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Label   lipgloss.Style
	Dim     lipgloss.Style
	Match   lipgloss.Style
}

// ColorStyles returns the coloured styles.
func ColorStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAccent)),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccent)),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorYellow)),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorRed)),
		Label:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDim)),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorBorder)),
		Match:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAccent)),
	}
}

// PlainStyles returns styles that render text unchanged.
func PlainStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{Header: plain, Success: plain, Warning: plain, Error: plain, Label: plain, Dim: plain, Match: plain}
}

// ColorEnabled reports whether out is a terminal and NO_COLOR is unset.
func ColorEnabled(out io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Writer provides formatted output for CLI.
type Writer struct {
	out    io.Writer
	styles Styles
	color  bool
}

// New creates a Writer, coloured when out is a terminal.
func New(out io.Writer) *Writer {
	return NewWithColor(out, ColorEnabled(out))
}

// NewWithColor creates a Writer with colour forced on or off.
func NewWithColor(out io.Writer, color bool) *Writer {
	styles := PlainStyles()
	if color {
		styles = ColorStyles()
	}
	return &Writer{out: out, styles: styles, color: color}
}

// Out returns the underlying writer.
func (w *Writer) Out() io.Writer {
	return w.out
}

// Status prints msg after icon. Write errors are ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon == "" {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
		return
	}
	_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
}

// Statusf is Status with formatting.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success line.
func (w *Writer) Success(msg string) {
	w.Status(w.styles.Success.Render("✓"), msg)
}

// Successf is Success with formatting.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning line.
func (w *Writer) Warning(msg string) {
	w.Status(w.styles.Warning.Render("!"), msg)
}

// Warningf is Warning with formatting.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error line.
func (w *Writer) Error(msg string) {
	w.Status(w.styles.Error.Render("✗"), msg)
}

// Errorf is Error with formatting.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Header prints a bold title line.
func (w *Writer) Header(title string) {
	_, _ = fmt.Fprintln(w.out, w.styles.Header.Render(title))
}

// KeyValue prints aligned "key: value" lines.
func (w *Writer) KeyValue(pairs [][2]string) {
	width := 0
	for _, p := range pairs {
		if len(p[0]) > width {
			width = len(p[0])
		}
	}
	for _, p := range pairs {
		label := fmt.Sprintf("%-*s", width+1, p[0]+":")
		_, _ = fmt.Fprintf(w.out, "  %s %s\n", w.styles.Label.Render(label), p[1])
	}
}

// Table prints rows under headers with columns padded to the widest cell.
func (w *Writer) Table(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, r := range rows {
		for i := range headers {
			if i < len(r) && lipgloss.Width(r[i]) > widths[i] {
				widths[i] = lipgloss.Width(r[i])
			}
		}
	}

	line := func(cells []string, style lipgloss.Style) {
		parts := make([]string, len(headers))
		for i := range headers {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			parts[i] = style.Render(cell + strings.Repeat(" ", widths[i]-lipgloss.Width(cell)))
		}
		_, _ = fmt.Fprintln(w.out, strings.TrimRight(strings.Join(parts, "  "), " "))
	}

	line(headers, w.styles.Label)
	for _, r := range rows {
		line(r, lipgloss.NewStyle())
	}
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// Dim renders s in the dim style.
func (w *Writer) Dim(s string) string {
	return w.styles.Dim.Render(s)
}
