package main

import (
	"os"
	"time"

	"github.com/mattn/go-isatty"

	"prism-todo/client"
	"prism-todo/tui"
)

func main() {
	apiURL := os.Getenv("API_URL")
	if apiURL == "" {
		apiURL = client.DefaultBaseURL
	}
	a := &app{
		apiURL:  apiURL,
		timeout: 10 * time.Second,
		isInteractive: func() bool {
			return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
		},
		confirm: confirmPrompt,
	}
	if err := newRootCmd(a).Execute(); err != nil {
		os.Stderr.WriteString(tui.Failure(err.Error()) + "\n")
		os.Exit(1)
	}
}
