package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/zulandar/humpyard/internal/batch"
	"golang.org/x/term"
)

// promptConfirmer asks the operator before each batch after the first.
type promptConfirmer struct {
	in      *bufio.Reader
	out     io.Writer
	pending chan answer // read still in flight from a cancelled prompt
}

type answer struct {
	line string
	err  error
}

func newPromptConfirmer(in io.Reader, out io.Writer) *promptConfirmer {
	return &promptConfirmer{in: bufio.NewReader(in), out: out}
}

// Confirm implements batch.Confirmer. Only "y" or "yes" continues; EOF
// stops the run. A cancelled ctx (Ctrl+C) returns at once with ctx.Err().
func (p *promptConfirmer) Confirm(ctx context.Context, next batch.Batch, remaining int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	fmt.Fprintf(p.out, "Continue with batch %d (%d file(s), %d batch(es) left)? [y/N]: ",
		next.Number, len(next.Files), remaining)

	if p.pending == nil {
		ch := make(chan answer, 1)
		p.pending = ch
		go func() {
			line, err := p.in.ReadString('\n')
			ch <- answer{line: line, err: err}
		}()
	}

	var a answer
	select {
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		return false, ctx.Err()
	case a = <-p.pending:
		p.pending = nil
	}

	if a.err != nil && a.err != io.EOF {
		return false, fmt.Errorf("read answer: %w", a.err)
	}
	switch strings.ToLower(strings.TrimSpace(a.line)) {
	case "y", "yes":
		return true, nil
	}
	if a.err == io.EOF {
		fmt.Fprintln(p.out)
	}
	return false, nil
}

// interactiveInput reports whether in can answer prompts. A non-terminal
// *os.File (a pipe or /dev/null) cannot; any other reader is treated as
// scripted input.
func interactiveInput(in io.Reader) bool {
	f, ok := in.(*os.File)
	if !ok {
		return true
	}
	return term.IsTerminal(int(f.Fd()))
}
