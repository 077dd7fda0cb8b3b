package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/cmtonkinson/worksync/internal/result"
)

var (
	okMark    = color.New(color.FgGreen).SprintFunc()
	failMark  = color.New(color.FgRed, color.Bold).SprintFunc()
	retryMark = color.New(color.FgYellow).SprintFunc()
	dimText   = color.New(color.Faint).SprintFunc()
)

// emit reports success. Human output is the message followed by whatever
// detail prints; --json prints the envelope with data.
func (a *app) emit(message string, data any, detail func(io.Writer)) error {
	if a.jsonOutput {
		return writeEnvelope(a.out, result.Success(message, data))
	}
	if message != "" {
		fmt.Fprintf(a.out, "%s %s\n", okMark("✓"), message)
	}
	if detail != nil {
		detail(a.out)
	}
	return nil
}

// fail reports err on stderr, or as an envelope on stdout with --json.
func (a *app) fail(err error) {
	if a.jsonOutput {
		if writeErr := writeEnvelope(a.out, result.Failure(err)); writeErr == nil {
			return
		}
	}
	kind := result.Classify(err)
	mark := failMark("✗")
	if result.ExitCode(err) == result.ExitRetry {
		mark = retryMark("…")
	}
	fmt.Fprintf(a.errOut, "%s %s %s\n", mark, dimText(string(kind)), err.Error())
	if kind == result.KindUsage && a.root != nil {
		fmt.Fprintf(a.errOut, "Run '%s --help' for usage.\n", a.root.Name())
	}
}

func (a *app) warn(message string) {
	if a.jsonOutput {
		fmt.Fprintf(a.errOut, "warning: %s\n", message)
		return
	}
	fmt.Fprintf(a.errOut, "%s %s\n", retryMark("warning:"), message)
}

func (a *app) debugf(format string, args ...any) {
	if !a.verbose {
		return
	}
	fmt.Fprintf(a.errOut, format+"\n", args...)
}

func writeEnvelope(w io.Writer, env result.Envelope) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(env)
}
