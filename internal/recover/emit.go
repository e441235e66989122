// internal/recover/emit.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package recover

import "fmt"

// Script renders the self-contained restore program for one run. It
// execs carbPath's hidden "recover" subcommand with this run's
// manifest directory baked in, forwarding CARB_RECOVER_TO_DIR and
// --damaged from its own environment/arguments, so the logic with real
// correctness requirements stays in tested Go rather than duplicated
// shell.
func Script(carbPath, manifestDir string) string {
	return fmt.Sprintf(`#!/bin/sh
# Generated by carb; restores the files recorded in this run's manifest.
# Usage: CARB_RECOVER_TO_DIR=/path/to/restore ./recover [--damaged]
set -e
if [ -z "$CARB_RECOVER_TO_DIR" ]; then
    echo "recover: CARB_RECOVER_TO_DIR must be set" >&2
    exit 64
fi
exec %q recover %q "$@"
`, carbPath, manifestDir)
}
