// Command repcrec runs a RepCRec script against the transactional
// simulator and prints the resulting event stream.
package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"repcrec/internal/driver"
)

func main() {
	environ := os.Environ()
	env := make(map[string]string, len(environ))
	for _, e := range environ {
		if k, v, ok := strings.Cut(e, "="); ok {
			env[k] = v
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	os.Exit(driver.Run(os.Stdin, os.Stdout, os.Stderr, os.Args[1:], env, sigCh))
}
