// Package banner prints the startup banner of the jobqueue server.
package banner

import (
	"fmt"
	"io"
)

// Version is the jobqueue release version.
const Version = "0.1.0"

// Print writes the banner to w.
func Print(w io.Writer) {
	banner := `
       _       _
      (_) ___ | |__   __ _ _   _  ___ _   _  ___
      | |/ _ \| '_ \ / _' | | | |/ _ \ | | |/ _ \
      | | (_) | |_) | (_| | |_| |  __/ |_| |  __/
     _/ |\___/|_.__/ \__, |\__,_|\___|\__,_|\___|
    |__/                |_|  v%s - at-least-once jobs
    `
	fmt.Fprintf(w, banner, Version)
	fmt.Fprintln(w, "\n------------------------------------------------")
}
