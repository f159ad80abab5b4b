package app

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/term"

	"drivesync/internal/ds"
)

// newProgressPrinter renders transfer progress as one line per transfer
// step, overwritten in place. Parallel transfers share the line.
func newProgressPrinter(w io.Writer) ds.ProgressFunc {
	var mu sync.Mutex
	return func(p ds.Progress) {
		mu.Lock()
		defer mu.Unlock()

		fmt.Fprintf(w, "\r\033[K%-8s %3d%%  %s", p.Direction, p.Percent, filepath.Base(p.Path))
		if p.Percent == 100 {
			fmt.Fprintln(w)
		}
	}
}

// terminalProgress returns a progress printer for f when f is a terminal,
// and nil otherwise so that redirected output stays clean.
func terminalProgress(f *os.File) ds.ProgressFunc {
	if !term.IsTerminal(int(f.Fd())) {
		return nil
	}
	return newProgressPrinter(f)
}
