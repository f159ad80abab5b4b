package app

import (
	"bytes"
	"strings"
	"testing"

	"drivesync/internal/ds"
)

func TestProgressPrinter(t *testing.T) {
	var buf bytes.Buffer
	report := newProgressPrinter(&buf)

	report(ds.Progress{Direction: ds.DirectionDownload, Path: "/data/docs/report.pdf", Percent: 0})
	report(ds.Progress{Direction: ds.DirectionDownload, Path: "/data/docs/report.pdf", Percent: 42})
	report(ds.Progress{Direction: ds.DirectionDownload, Path: "/data/docs/report.pdf", Percent: 100})

	got := buf.String()
	if !strings.Contains(got, "download  42%  report.pdf") {
		t.Errorf("output = %q, want the 42%% step", got)
	}
	if !strings.HasSuffix(got, "100%  report.pdf\n") {
		t.Errorf("output = %q, want a finished line", got)
	}
	if strings.Count(got, "\n") != 1 {
		t.Errorf("output = %q, want a single newline at completion", got)
	}
}
