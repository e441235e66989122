// internal/recover/restore.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

// Package recover implements the restore logic behind the
// self-contained script each run emits, driven by CARB_RECOVER_TO_DIR
// and an optional damaged-only mode.
package recover

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mmp/carb/internal/blob"
	"github.com/mmp/carb/internal/log"
	"github.com/mmp/carb/internal/parity"
	"github.com/mmp/carb/internal/pathutil"
)

// Mode selects which files a restore writes.
type Mode int

const (
	// ModeAll restores every record, verifying/repairing where parity
	// exists.
	ModeAll Mode = iota
	// ModeDamaged writes only records whose verification failed and
	// whose repair succeeded.
	ModeDamaged
)

// Summary tallies restore outcomes.
type Summary struct {
	VerifiedClean  int
	Repaired       int
	NoParityCopied int
	Failed         int
	SkippedClean   int
	SkippedNoParity int
}

type record struct {
	id      blob.ID
	absPath string
}

// Restore reads manifestDir's collated file_processed and start_folder,
// and for each record verifies/repairs/copies it into
// destDir/<basename(startFolder)>/<relative path>.
func Restore(manifestDir, blobDir, parityDir, destDir string, mode Mode, l *log.Logger) (Summary, error) {
	records, startFolder, err := readManifest(manifestDir)
	if err != nil {
		return Summary{}, err
	}
	base := filepath.Base(startFolder)

	var sum Summary
	for _, rec := range records {
		rel, err := pathutil.Rel(rec.absPath, startFolder)
		if err != nil {
			l.Warning("%s: can't compute relative path: %s", rec.absPath, err)
			sum.Failed++
			continue
		}
		destPath := filepath.Join(destDir, base, rel)
		cat := restoreOne(rec.id, blobDir, parityDir, destPath, mode, l)
		tally(&sum, cat)
	}
	return sum, nil
}

type category int

const (
	catVerifiedClean category = iota
	catRepaired
	catNoParityCopied
	catFailed
	catSkippedClean
	catSkippedNoParity
)

func tally(sum *Summary, cat category) {
	switch cat {
	case catVerifiedClean:
		sum.VerifiedClean++
	case catRepaired:
		sum.Repaired++
	case catNoParityCopied:
		sum.NoParityCopied++
	case catFailed:
		sum.Failed++
	case catSkippedClean:
		sum.SkippedClean++
	case catSkippedNoParity:
		sum.SkippedNoParity++
	}
}

func restoreOne(id blob.ID, blobDir, parityDir, destPath string, mode Mode, l *log.Logger) category {
	blobPath := filepath.Join(blobDir, id.String())
	parityBase := filepath.Join(parityDir, id.String())

	hasParity := fileExists(parityBase + ".par2")

	if !hasParity {
		if mode == ModeDamaged {
			return catSkippedNoParity
		}
		if err := copyFile(blobPath, destPath); err != nil {
			l.Error("%s: %s", blobPath, err)
			return catFailed
		}
		return catNoParityCopied
	}

	ok, err := parity.Verify(blobPath, parityBase)
	if err != nil {
		l.Warning("%s: verify: %s", blobPath, err)
		ok = false
	}

	if ok {
		if mode == ModeDamaged {
			return catSkippedClean
		}
		if err := copyFile(blobPath, destPath); err != nil {
			l.Error("%s: %s", blobPath, err)
			return catFailed
		}
		return catVerifiedClean
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o700); err != nil {
		l.Error("%s: %s", destPath, err)
		return catFailed
	}
	f, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		l.Error("%s: %s", destPath, err)
		return catFailed
	}
	rerr := parity.Repair(blobPath, parityBase, f)
	cerr := f.Close()
	if rerr != nil || cerr != nil {
		if mode == ModeDamaged {
			// Damaged-only mode writes nothing for a blob it couldn't repair.
			l.Warning("%s: repair failed: %v", blobPath, firstNonNil(rerr, cerr))
			os.Remove(destPath)
			return catFailed
		}
		// Repair failed: never abort the restore — fall back to a
		// byte-for-byte copy of the damaged blob and report it.
		l.Warning("%s: repair failed, copying damaged blob: %v", blobPath, firstNonNil(rerr, cerr))
		if err := copyFile(blobPath, destPath); err != nil {
			l.Error("%s: %s", blobPath, err)
		}
		return catFailed
	}
	return catRepaired
}

func firstNonNil(errs ...error) error {
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o700); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func readManifest(manifestDir string) ([]record, string, error) {
	startFolderBytes, err := os.ReadFile(filepath.Join(manifestDir, "start_folder"))
	if err != nil {
		return nil, "", err
	}
	startFolder := strings.TrimSpace(string(startFolderBytes))

	f, err := os.Open(filepath.Join(manifestDir, "file_processed"))
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	var records []record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 4)
		if len(parts) != 4 {
			continue
		}
		id, err := blob.Parse(parts[0])
		if err != nil {
			continue
		}
		records = append(records, record{id: id, absPath: parts[3]})
	}
	if err := scanner.Err(); err != nil {
		return nil, "", err
	}
	return records, startFolder, nil
}

// String renders a human-readable summary line.
func (s Summary) String() string {
	return fmt.Sprintf("verified-clean=%d repaired=%d no-parity-copied=%d failed=%d skipped-clean=%d skipped-no-parity=%d",
		s.VerifiedClean, s.Repaired, s.NoParityCopied, s.Failed, s.SkippedClean, s.SkippedNoParity)
}
