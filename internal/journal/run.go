// internal/journal/run.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package journal

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mmp/carb/internal/blob"
	"github.com/mmp/carb/internal/log"
)

// Mode is the run's enumeration mode, recorded in the ingestedFolders
// log.
type Mode struct {
	Incremental bool
	// RefTime is the cutoff reference mtime, valid only if Incremental.
	RefTime time.Time
}

func (m Mode) descriptor() string {
	if !m.Incremental {
		return "full"
	}
	return "incremental ref=" + m.RefTime.Format(time.RFC3339Nano)
}

// Run is one manifest directory: exclusively owned by the run that
// created it, sealed at run end, never mutated after that.
type Run struct {
	Dir         string // manifest/v05_<timestamp>
	LogsDir     string
	StartTime   time.Time
	StartFolder string

	root string
	log  *log.Logger
}

// timestampLayout produces the "YYYY-MM-DD_HH_MM_SS" component of a
// run manifest directory name.
const timestampLayout = "2006-01-02_15_04_05"

// NewRun creates the skeleton of a new RunManifest directory
// under root/manifest, ready for workers to log into LogsDir.
func NewRun(root, startFolder string, startTime time.Time, l *log.Logger) (*Run, error) {
	name := "v05_" + startTime.Format(timestampLayout)
	dir := filepath.Join(root, "manifest", name)
	logsDir := filepath.Join(dir, "logs")
	if err := os.MkdirAll(logsDir, 0o700); err != nil {
		return nil, err
	}
	return &Run{
		Dir:         dir,
		LogsDir:     logsDir,
		StartTime:   startTime,
		StartFolder: startFolder,
		root:        root,
		log:         l,
	}, nil
}

// NewWorkerLog opens a per-worker log set inside this run.
func (r *Run) NewWorkerLog(workerID string) (*WorkerLog, error) {
	return NewWorkerLog(r.LogsDir, workerID)
}

// Collate runs the end-of-run steps: concatenate every worker's
// per-category logs into the consolidated manifest files, derive
// index_new, write settings/start_time/start_folder, append to the
// global index and ingestedFolders log, and record which blob
// identities got fresh parity this run. The manifest files it writes are
// idempotent: running it twice on the same Run produces the same
// consolidated output, since concatenation is a deterministic function
// of the files already on disk. The global index and ingestedFolders log
// are not: each call appends this run's entries to them again.
func (r *Run) Collate(mode Mode, cfg Settings, parityCreated []blob.ID) error {
	for _, cat := range categories {
		if err := r.concatenateCategory(cat); err != nil {
			r.log.Error("%s: collation error: %s", cat, err)
		}
	}

	ingestedIDs, err := r.readIngestedBlobIDs()
	if err != nil {
		r.log.Error("file_ingested: %s", err)
	}
	if err := r.writeIndexNew(ingestedIDs); err != nil {
		r.log.Error("index_new: %s", err)
	}

	if err := r.writeSettings(cfg); err != nil {
		r.log.Error("settings: %s", err)
	}
	if err := os.WriteFile(filepath.Join(r.Dir, "start_time"), []byte(r.StartTime.Format(time.RFC3339Nano)+"\n"), 0o600); err != nil {
		r.log.Error("start_time: %s", err)
	}
	if err := os.WriteFile(filepath.Join(r.Dir, "start_folder"), []byte(r.StartFolder+"\n"), 0o600); err != nil {
		r.log.Error("start_folder: %s", err)
	}

	if err := r.writePar2Created(parityCreated); err != nil {
		r.log.Error("par2_created: %s", err)
	}

	if err := r.appendGlobalIndex(ingestedIDs); err != nil {
		r.log.Error("global index: %s", err)
	}
	if err := r.appendIngestedFolders(mode, cfg.Comment); err != nil {
		r.log.Error("ingestedFolders: %s", err)
	}
	return nil
}

// Settings is the subset of configuration recorded verbatim in the
// manifest's "settings" file.
type Settings struct {
	Jobs           int
	Par2           bool
	Par2Redundancy int
	Par2BlockSize  int64
	EnableMime     bool
	ExcludeGlobs   []string
	Comment        string
}

func (r *Run) writeSettings(s Settings) error {
	var b strings.Builder
	fmt.Fprintf(&b, "JOBS=%d\n", s.Jobs)
	fmt.Fprintf(&b, "PAR2=%d\n", boolToInt(s.Par2))
	fmt.Fprintf(&b, "PAR2_REDUNDANCY=%d\n", s.Par2Redundancy)
	fmt.Fprintf(&b, "PAR2_BLOCKSIZE=%d\n", s.Par2BlockSize)
	fmt.Fprintf(&b, "ENABLE_MIME=%d\n", boolToInt(s.EnableMime))
	fmt.Fprintf(&b, "EXCLUDE_GLOBS=%s\n", strings.Join(s.ExcludeGlobs, ","))
	fmt.Fprintf(&b, "COMMENT=%s\n", s.Comment)
	return os.WriteFile(filepath.Join(r.Dir, "settings"), []byte(b.String()), 0o600)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// concatenateCategory globs both the bare and legacy "_"-prefixed
// per-worker filenames for cat and concatenates whatever it finds, in
// filename order, into the consolidated manifest file of the same
// name.
func (r *Run) concatenateCategory(cat string) error {
	var paths []string
	for _, pattern := range []string{"*_" + cat, "_*_" + cat} {
		matches, err := filepath.Glob(filepath.Join(r.LogsDir, pattern))
		if err != nil {
			return err
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)

	out, err := os.Create(filepath.Join(r.Dir, "file_"+cat))
	if err != nil {
		return err
	}
	defer out.Close()

	seen := make(map[string]bool)
	for _, p := range paths {
		if seen[p] {
			continue
		}
		seen[p] = true
		in, err := os.Open(p)
		if err != nil {
			return err
		}
		_, err = io.Copy(out, in)
		in.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Run) readIngestedBlobIDs() ([]blob.ID, error) {
	data, err := os.ReadFile(filepath.Join(r.Dir, "file_ingested"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var ids []blob.ID
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		id, err := blob.Parse(parts[0])
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// writeIndexNew derives index_new: the deduped, sorted set of blob
// identities ingested this run.
func (r *Run) writeIndexNew(ids []blob.ID) error {
	dedup := dedupeIDs(ids)
	var b strings.Builder
	for _, id := range dedup {
		b.WriteString(id.String())
		b.WriteByte('\n')
	}
	return os.WriteFile(filepath.Join(r.Dir, "index_new"), []byte(b.String()), 0o600)
}

func dedupeIDs(ids []blob.ID) []blob.ID {
	seen := make(map[blob.ID]bool, len(ids))
	var out []blob.ID
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

func (r *Run) writePar2Created(ids []blob.ID) error {
	var b strings.Builder
	for _, id := range ids {
		b.WriteString(id.String())
		b.WriteByte('\n')
	}
	return os.WriteFile(filepath.Join(r.Dir, "par2_created"), []byte(b.String()), 0o600)
}

// appendGlobalIndex appends this run's ingested blob identities to
// <root>/blobs/INDEX: append-only, may contain cross-run duplicates,
// advisory not authoritative.
func (r *Run) appendGlobalIndex(ids []blob.ID) error {
	path := filepath.Join(r.root, "blobs", "INDEX")
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	for _, id := range dedupeIDs(ids) {
		if _, err := f.WriteString(id.String() + "\n"); err != nil {
			return err
		}
	}
	return nil
}

// appendIngestedFolders appends one line to
// <root>/manifest/ingestedFolders.
func (r *Run) appendIngestedFolders(mode Mode, comment string) error {
	path := filepath.Join(r.root, "manifest", "ingestedFolders")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	cwd, err := os.Getwd()
	if err != nil {
		cwd = ""
	}
	line := fmt.Sprintf("%s :%s:%s: %s : %s\n",
		r.StartTime.Format(time.RFC3339Nano), cwd, r.StartFolder, comment, mode.descriptor())
	_, err = f.WriteString(line)
	return err
}

// WriteRecover writes the manifest-level "recover" file: the generated
// restore program for this run. It is written once, not accumulated
// per worker (see the note on the `categories` slice in worker.go).
func (r *Run) WriteRecover(content []byte) error {
	path := filepath.Join(r.Dir, "recover")
	if err := os.WriteFile(path, content, 0o700); err != nil {
		return err
	}
	return nil
}
