package ui

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Confirm asks a yes/no question on out and reads the answer from in. Only
// "y" or "yes" accept; anything else, including end of input, declines.
func Confirm(in io.Reader, out io.Writer, prompt string) (bool, error) {
	fmt.Fprintf(out, "  %s %s ", prompt, StyleDim.Render("[y/N]"))
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("reading answer: %w", err)
	}
	answer = strings.TrimSpace(strings.ToLower(answer))
	if errors.Is(err, io.EOF) && answer == "" {
		fmt.Fprintln(out)
	}
	return answer == "y" || answer == "yes", nil
}

// ConfirmStdin is Confirm over the process's stdin. It declines without
// asking when stdin is not a terminal, so piped and CI runs never block.
func ConfirmStdin(out io.Writer, prompt string) (bool, error) {
	if !IsTerminal(os.Stdin.Fd()) {
		fmt.Fprintf(out, "  %s\n  %s\n", prompt, StyleHint.Render("stdin is not a terminal; pass --yes to confirm"))
		return false, nil
	}
	return Confirm(os.Stdin, out, prompt)
}
