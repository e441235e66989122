// internal/recover/emit_test.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package recover

import (
	"strings"
	"testing"
)

func TestScriptReferencesCarbAndManifestDir(t *testing.T) {
	s := Script("/usr/local/bin/carb", "/data/manifest/v05_x")
	if !strings.HasPrefix(s, "#!/bin/sh") {
		t.Errorf("script does not start with a shebang: %q", s)
	}
	if !strings.Contains(s, "/usr/local/bin/carb") {
		t.Errorf("script missing carb binary path")
	}
	if !strings.Contains(s, "/data/manifest/v05_x") {
		t.Errorf("script missing manifest directory")
	}
	if !strings.Contains(s, "CARB_RECOVER_TO_DIR") {
		t.Errorf("script missing CARB_RECOVER_TO_DIR check")
	}
}
