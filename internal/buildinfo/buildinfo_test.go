package buildinfo

import (
	"runtime"
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	info := Get()
	if info.Version != Version || info.GoVersion != runtime.Version() {
		t.Errorf("unexpected info %+v", info)
	}
	fields := info.Fields()
	if len(fields) != 7 || fields[0][0] != "version" || fields[6][0] != "arch" {
		t.Errorf("unexpected field order %v", fields)
	}
}

func TestUserAgent(t *testing.T) {
	old := Version
	Version = "v1.2.0"
	t.Cleanup(func() { Version = old })

	if got := UserAgent(); got != "emvassist/v1.2.0" {
		t.Errorf("UserAgent() = %q", got)
	}
	if !strings.HasPrefix(String(), "EM&V Assistant v1.2.0 ") {
		t.Errorf("String() = %q", String())
	}
}
