package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func TestProgressLine(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressLine(&buf, "upload")
	p.Report(512, 2048)
	p.Report(2048, 2048)
	p.Finish()

	out := buf.String()
	if !strings.Contains(out, "\rupload  512 B / 2.0 KiB  (25%)") {
		t.Errorf("missing partial line in %q", out)
	}
	if !strings.HasSuffix(out, "(100%)\n") {
		t.Errorf("line should end once at the total, got %q", out)
	}
	if strings.Count(out, "\n") != 1 {
		t.Errorf("Finish after completion must not add a newline: %q", out)
	}
}

func TestProgressLine_FinishInterrupted(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressLine(&buf, "upload")
	p.Finish()
	if buf.Len() != 0 {
		t.Errorf("Finish without reports wrote %q", buf.String())
	}
	p.Report(1, 10)
	p.Finish()
	if !strings.HasSuffix(buf.String(), "\n") {
		t.Errorf("interrupted line should be terminated: %q", buf.String())
	}
}
