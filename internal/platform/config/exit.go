package config

import (
	"fmt"
	"os"
)

// Exitf writes a formatted error to stderr and exits with code 1.
// CLI entry points use it for a consistent fatal-exit path.
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
