// Package console is the interactive surface of mictest: banners, status
// lines and the two line based prompts.
//
// Output is styled with lipgloss. The renderer is bound to the output writer,
// so anything that is not a terminal (a pipe, a file, a test buffer) receives
// plain text.
package console

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const bannerWidth = 50

type theme struct {
	banner  lipgloss.Style
	heading lipgloss.Style
	success lipgloss.Style
	err     lipgloss.Style
	prompt  lipgloss.Style
}

func newTheme(r *lipgloss.Renderer) theme {
	return theme{
		banner: r.NewStyle().
			Bold(true),
		heading: r.NewStyle().
			Foreground(lipgloss.Color("6")), // cyan
		success: r.NewStyle().
			Foreground(lipgloss.Color("2")), // green
		err: r.NewStyle().
			Foreground(lipgloss.Color("1")), // red
		prompt: r.NewStyle().
			Foreground(lipgloss.Color("3")), // yellow
	}
}

type Console struct {
	in    *bufio.Reader
	out   io.Writer
	theme theme
}

func New(in io.Reader, out io.Writer) *Console {
	return &Console{
		in:    bufio.NewReader(in),
		out:   out,
		theme: newTheme(lipgloss.NewRenderer(out)),
	}
}

// Out is the raw output, for writers that manage their own line (the progress
// bar).
func (c *Console) Out() io.Writer {
	return c.out
}

func (c *Console) Printf(format string, a ...any) {
	fmt.Fprintf(c.out, format, a...)
}

func (c *Console) Println(a ...any) {
	fmt.Fprintln(c.out, a...)
}

// Banner prints title between two rules, preceded by a blank line.
func (c *Console) Banner(title string) {
	rule := strings.Repeat("=", bannerWidth)
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, c.theme.banner.Render(rule))
	fmt.Fprintln(c.out, c.theme.banner.Render(title))
	fmt.Fprintln(c.out, c.theme.banner.Render(rule))
}

func (c *Console) Heading(title string) {
	fmt.Fprintln(c.out, c.theme.heading.Render(fmt.Sprintf("=== %s ===", title)))
}

func (c *Console) Success(format string, a ...any) {
	fmt.Fprintln(c.out, c.theme.success.Render("✅ "+fmt.Sprintf(format, a...)))
}

// Error prints a failure line, "❌ " followed by the formatted message.
func (c *Console) Error(format string, a ...any) {
	fmt.Fprintln(c.out, c.theme.err.Render("❌ "+fmt.Sprintf(format, a...)))
}

// --------------------------------------------------------------------------------
// Prompts

// Prompt prints question and returns the next input line without its line
// ending. End of input counts as an empty answer.
func (c *Console) Prompt(question string) (string, error) {
	fmt.Fprint(c.out, c.theme.prompt.Render(question))
	line, err := c.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	if errors.Is(err, io.EOF) {
		// Nobody typed the newline, keep the console tidy.
		fmt.Fprintln(c.out)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// PromptDuration asks for a recording duration in whole seconds, falling back
// to def as ParseDuration does.
func (c *Console) PromptDuration(def int) int {
	answer, err := c.Prompt(fmt.Sprintf("Enter recording duration in seconds (default %d): ", def))
	if err != nil {
		return def
	}
	return ParseDuration(answer, def)
}

// Confirm asks a yes/no question. Only "y", in any case and surrounded by any
// whitespace, is a yes.
func (c *Console) Confirm(question string) bool {
	answer, err := c.Prompt(question)
	if err != nil {
		return false
	}
	return IsYes(answer)
}

func IsYes(answer string) bool {
	return strings.ToLower(strings.TrimSpace(answer)) == "y"
}

// ParseDuration reads a positive whole number of seconds. Empty, non numeric
// and non positive input all give def.
func ParseDuration(input string, def int) int {
	input = strings.TrimSpace(input)
	if input == "" {
		return def
	}
	d, err := strconv.Atoi(input)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
