package tui

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/fatih/color"
)

// plainColors disables colour output for the duration of the test.
func plainColors(t *testing.T) {
	t.Helper()
	orig := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = orig })
}

func TestSectionColor(t *testing.T) {
	tests := map[string]*color.Color{
		"Settings":    ColorSettings,
		"settings":    ColorSettings,
		"Roles":       ColorRoles,
		"Deployment":  ColorDeployment,
		"SSH":         ColorSSH,
		"Environment": nil,
		"":            nil,
	}
	for name, want := range tests {
		if got := SectionColor(name); got != want {
			t.Errorf("SectionColor(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestAnnotations(t *testing.T) {
	plainColors(t)

	tests := []struct {
		name string
		got  string
		want string
	}{
		{name: "annotate summary", got: Annotate("%d defined", 2), want: "(2 defined)"},
		{name: "annotate path", got: Annotate("%s", "~/.flax/templates/nginx.conf"), want: "(~/.flax/templates/nginx.conf)"},
		{name: "bracket section", got: Bracket("%s", "Settings"), want: "[Settings]"},
		{name: "bracket host", got: Bracket("deploy@%s:%d", "web1", 2222), want: "[deploy@web1:2222]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestProgress_Disabled(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "progress")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	tests := []struct {
		name  string
		w     io.Writer
		quiet bool
	}{
		{name: "buffer", w: &bytes.Buffer{}},
		// A regular file is an *os.File but not a terminal.
		{name: "file", w: f},
		{name: "quiet", w: f, quiet: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProgress(tt.w, tt.quiet)
			if p.on {
				t.Fatal("progress enabled for a non-terminal writer")
			}
			p.Update("Connecting to %s...", "web1")
			p.Done()
		})
	}

	if buf := tests[0].w.(*bytes.Buffer); buf.Len() != 0 {
		t.Errorf("buffer written: %q", buf.String())
	}
	if n, _ := f.Seek(0, io.SeekEnd); n != 0 {
		t.Errorf("file written: %d bytes", n)
	}
}

func TestProgress_Overwrite(t *testing.T) {
	buf := &bytes.Buffer{}
	p := &Progress{w: buf, on: true}

	p.Update("Connecting to %s...", "web1.example.com")
	p.Update("Connecting to %s...", "db1")
	p.Done()
	p.Done()

	want := "\rConnecting to web1.example.com..." +
		"\rConnecting to db1...             " +
		"\r                    \r"
	if got := buf.String(); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}
