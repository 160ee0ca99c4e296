package discordblue

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Selector chooses one of options, returning its index. kind names what's
// being chosen ("guild", "channel").
type Selector func(ctx context.Context, kind string, options []string) (int, error)

// TerminalSelector prints a numbered list of options to out and reads the
// selection from in, asking again until a valid number is entered.
func TerminalSelector(in io.Reader, out io.Writer) Selector {
	reader := bufio.NewReader(in)
	return func(ctx context.Context, kind string, options []string) (int, error) {
		_, _ = fmt.Fprintf(out, "Available %ss:\n", kind)
		for i, option := range options {
			_, _ = fmt.Fprintf(out, "%d. %s\n", i+1, option)
		}
		for {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
			_, _ = fmt.Fprintf(out, "Select a %s: ", kind)
			line, err := reader.ReadString('\n')
			if err != nil && !(errors.Is(err, io.EOF) && line != "") {
				return 0, fmt.Errorf("error reading selection: %w", err)
			}
			n, convErr := strconv.Atoi(strings.TrimSpace(line))
			if convErr == nil && n >= 1 && n <= len(options) {
				return n - 1, nil
			}
			_, _ = fmt.Fprintln(out, "Invalid selection")
			if err != nil {
				return 0, fmt.Errorf("error reading selection: %w", err)
			}
		}
	}
}
