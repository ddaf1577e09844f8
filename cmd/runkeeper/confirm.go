package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// confirm asks on out and reads the answer from in. Without a terminal on
// stdin there is nobody to ask and the action proceeds.
func confirm(in *os.File, out io.Writer, prompt string) bool {
	if !term.IsTerminal(int(in.Fd())) {
		return true
	}
	return ask(in, out, prompt)
}

func ask(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
