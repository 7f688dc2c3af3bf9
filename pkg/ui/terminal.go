package ui

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// ASCII logo for the application
const ASCIILogo = `
    ╔═══════════════════════════════════════════════════╗
    ║ ██╗███╗   ██╗███████╗████████╗ █████╗ ██████╗ ██████╗  ║
    ║ ██║████╗  ██║██╔════╝╚══██╔══╝██╔══██╗██╔══██╗██╔══██╗ ║
    ║ ██║██╔██╗ ██║███████╗   ██║   ███████║██║  ██║██████╔╝ ║
    ║ ██║██║╚██╗██║╚════██║   ██║   ██╔══██║██║  ██║██╔══██╗ ║
    ║ ██║██║ ╚████║███████║   ██║   ██║  ██║██████╔╝██████╔╝ ║
    ║ ╚═╝╚═╝  ╚═══╝╚══════╝   ╚═╝   ╚═╝  ╚═╝╚═════╝ ╚═════╝  ║
    ║          PUBLIC FEED ARCHIVER AND POST DATABASE         ║
    ╚═══════════════════════════════════════════════════╝
`

// Color functions for terminal output
var (
	Cyan    = colorize("\033[36m%s\033[0m")
	Yellow  = colorize("\033[33m%s\033[0m")
	Red     = colorize("\033[31m%s\033[0m")
	Green   = colorize("\033[32m%s\033[0m")
	Magenta = colorize("\033[35m%s\033[0m")
	Dim     = colorize("\033[2m%s\033[0m")
)

var (
	outMu  sync.Mutex
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
	quiet  bool
)

// SetQuiet suppresses everything except errors
func SetQuiet(q bool) {
	outMu.Lock()
	defer outMu.Unlock()
	quiet = q
}

// SetOutput redirects regular and error output
func SetOutput(out, errOut io.Writer) {
	outMu.Lock()
	defer outMu.Unlock()
	stdout = out
	stderr = errOut
}

// colorize returns a function that wraps text with ANSI color codes
func colorize(colorString string) func(string) string {
	return func(text string) string {
		return fmt.Sprintf(colorString, text)
	}
}

func printLine(s string) {
	outMu.Lock()
	defer outMu.Unlock()
	if !quiet {
		fmt.Fprintln(stdout, s)
	}
}

func withDetail(msg string, args []interface{}) string {
	if len(args) > 0 {
		return msg + ": " + fmt.Sprintf("%v", args[0])
	}
	return msg
}

// PrintLogo prints the ASCII logo with color
func PrintLogo() {
	outMu.Lock()
	defer outMu.Unlock()
	if !quiet {
		fmt.Fprint(stdout, Cyan(ASCIILogo))
	}
}

// PrintError prints an error message in red on stderr, even when quiet
func PrintError(msg string, args ...interface{}) {
	outMu.Lock()
	defer outMu.Unlock()
	fmt.Fprintln(stderr, Red(withDetail(msg, args)))
}

// PrintSuccess prints a success message in green
func PrintSuccess(msg string) {
	printLine(Green(msg))
}

// PrintInfo prints a label and value
func PrintInfo(label string, value string) {
	printLine(fmt.Sprintf("%s: %s", Cyan(label), Yellow(value)))
}

// PrintWarning prints a warning message in yellow
func PrintWarning(msg string, args ...interface{}) {
	printLine(Yellow(withDetail(msg, args)))
}

// PrintHighlight prints a highlighted message in magenta
func PrintHighlight(msg string) {
	printLine(Magenta(msg))
}
