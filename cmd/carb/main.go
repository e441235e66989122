// cmd/carb/main.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

// carb is a content-addressable, deduplicating backup ingester with
// forward-error-correction parity. Argument handling is a plain
// positional dispatch, not a flag package.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/mmp/carb/internal/blob"
	"github.com/mmp/carb/internal/blobstore"
	"github.com/mmp/carb/internal/config"
	"github.com/mmp/carb/internal/fsck"
	"github.com/mmp/carb/internal/ingest"
	"github.com/mmp/carb/internal/journal"
	"github.com/mmp/carb/internal/log"
	"github.com/mmp/carb/internal/parity"
	"github.com/mmp/carb/internal/pathutil"
	"github.com/mmp/carb/internal/recover"
)

const (
	exitOK             = 0
	exitUsage          = 64
	exitMissingDepency = 69
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: carb <start_dir> [--full]")
	fmt.Fprintln(os.Stderr, "       carb <start_dir> <ref_file>")
	fmt.Fprintln(os.Stderr, "       carb fsck")
	fmt.Fprintln(os.Stderr, "       carb verify <blob_id>")
	fmt.Fprintln(os.Stderr, "       carb recover <manifest_dir> [--damaged]")
	os.Exit(exitUsage)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	switch os.Args[1] {
	case "recover":
		os.Exit(runRecover(os.Args[2:]))
	case "fsck":
		os.Exit(runFsck(os.Args[2:]))
	case "verify":
		os.Exit(runVerify(os.Args[2:]))
	default:
		os.Exit(runBackup(os.Args[1:]))
	}
}

func runBackup(args []string) int {
	if len(args) < 1 {
		usage()
	}
	startDirArg := args[0]

	var incremental bool
	var refFile string
	if len(args) >= 2 {
		if args[1] == "--full" {
			incremental = false
		} else {
			incremental = true
			refFile = args[1]
		}
	}

	l := log.New(true /*verbose*/, os.Getenv("CARB_DEBUG") == "1")

	startDir, err := pathutil.NormalizeStartDir(startDirArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "carb: %s: %s\n", startDirArg, err)
		return exitUsage
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "carb: %s\n", err)
		return exitUsage
	}

	if err := preflight(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "carb: %s\n", err)
		return 1
	}

	var cutoff *time.Time
	if incremental {
		fi, err := os.Stat(refFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "carb: %s: %s\n", refFile, err)
			return exitUsage
		}
		t := fi.ModTime()
		cutoff = &t
	}

	sweepTmp(cfg, l)

	store, err := blobstore.Open(cfg.BlobDir(), l)
	if err != nil {
		fmt.Fprintf(os.Stderr, "carb: %s\n", err)
		return 1
	}

	pc, err := parity.NewCreator(cfg.ParityDir(), l)
	if err != nil {
		fmt.Fprintf(os.Stderr, "carb: %s\n", err)
		return 1
	}

	startTime := time.Now()
	run, err := journal.NewRun(cfg.Root, startDir, startTime, l)
	if err != nil {
		fmt.Fprintf(os.Stderr, "carb: %s\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := ingest.NewPipeline(cfg, store, pc, run, startDir, l)
	if err := p.Run(ctx, cutoff); err != nil {
		fmt.Fprintf(os.Stderr, "carb: run aborted: %s\n", err)
		// A fatal error means the run's manifest may be incomplete and
		// should not be considered authoritative — skip Collate
		// entirely rather than seal a partial journal.
		return 1
	}

	mode := journal.Mode{Incremental: incremental}
	if cutoff != nil {
		mode.RefTime = *cutoff
	}
	settings := journal.Settings{
		Jobs:           cfg.Jobs,
		Par2:           cfg.Par2,
		Par2Redundancy: cfg.Par2Redundancy,
		Par2BlockSize:  cfg.Par2BlockSize,
		EnableMime:     cfg.EnableMime,
		ExcludeGlobs:   cfg.ExcludeGlobs,
		Comment:        cfg.Comment,
	}
	if err := run.Collate(mode, settings, p.ParityCreated()); err != nil {
		fmt.Fprintf(os.Stderr, "carb: collation error: %s\n", err)
	}

	carbPath, _ := os.Executable()
	if err := run.WriteRecover([]byte(recover.Script(carbPath, run.Dir))); err != nil {
		fmt.Fprintf(os.Stderr, "carb: recover script: %s\n", err)
	}

	c := p.Counts()
	l.Print("ingested=%d (%s) deduped=%d parity_created=%d failed=%d elapsed=%s\n",
		c.Ingested, log.FmtBytes(c.BytesIngested), c.Deduped, c.ParityCreated, c.Failed,
		time.Since(startTime).Round(time.Millisecond))

	return exitOK
}

// preflight aborts before any file is touched if the run can't
// possibly succeed.
func preflight(cfg *config.Config) error {
	if err := os.MkdirAll(cfg.Root, 0o700); err != nil {
		return fmt.Errorf("fatal: storage root %s is not writable: %w", cfg.Root, err)
	}
	if err := os.MkdirAll(cfg.TmpDir, 0o700); err != nil {
		return fmt.Errorf("fatal: tmp dir %s is not writable: %w", cfg.TmpDir, err)
	}
	probe := filepath.Join(cfg.TmpDir, ".carb-writable-probe")
	if f, err := os.Create(probe); err != nil {
		return fmt.Errorf("fatal: tmp dir %s is not writable: %w", cfg.TmpDir, err)
	} else {
		f.Close()
		os.Remove(probe)
	}
	return nil
}

func runFsck(args []string) int {
	l := log.New(true, false)
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "carb: %s\n", err)
		return exitUsage
	}
	rpt, err := fsck.Check(cfg.BlobDir(), filepath.Join(cfg.BlobDir(), "INDEX"), l)
	if err != nil {
		fmt.Fprintf(os.Stderr, "carb: fsck: %s\n", err)
		return 1
	}
	l.Print("%s\n", rpt)
	if len(rpt.Mismatched) > 0 {
		return 1
	}
	return exitOK
}

func runVerify(args []string) int {
	if len(args) != 1 {
		usage()
	}
	l := log.New(true, false)
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "carb: %s\n", err)
		return exitUsage
	}
	id, err := blobIDFromArg(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "carb: %s\n", err)
		return exitUsage
	}
	blobPath := filepath.Join(cfg.BlobDir(), id.String())
	parityBase := filepath.Join(cfg.ParityDir(), id.String())
	ok, err := parity.Verify(blobPath, parityBase)
	if err != nil {
		fmt.Fprintf(os.Stderr, "carb: verify: %s\n", err)
		return 1
	}
	if ok {
		l.Print("%s: verified clean\n", id)
		return exitOK
	}
	l.Print("%s: damaged\n", id)
	return 1
}

func runRecover(args []string) int {
	if len(args) < 1 {
		usage()
	}
	manifestDir := args[0]
	damaged := false
	for _, a := range args[1:] {
		if a == "--damaged" {
			damaged = true
		}
	}

	dest := os.Getenv("CARB_RECOVER_TO_DIR")
	if dest == "" {
		fmt.Fprintln(os.Stderr, "carb recover: CARB_RECOVER_TO_DIR must be set")
		return exitUsage
	}

	l := log.New(true, false)
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "carb: %s\n", err)
		return exitUsage
	}

	mode := recover.ModeAll
	if damaged {
		mode = recover.ModeDamaged
	}

	sum, err := recover.Restore(manifestDir, cfg.BlobDir(), cfg.ParityDir(), dest, mode, l)
	if err != nil {
		fmt.Fprintf(os.Stderr, "carb recover: %s\n", err)
		return 1
	}
	l.Print("restore summary: %s\n", sum)
	return exitOK
}

// blobIDFromArg accepts a blob's canonical name with or without its
// trailing ".data" suffix.
func blobIDFromArg(s string) (blob.ID, error) {
	if !strings.HasSuffix(s, ".data") {
		s += ".data"
	}
	return blob.Parse(s)
}

func sweepTmp(cfg *config.Config, l *log.Logger) {
	if cfg.TmpMaxAge <= 0 {
		return
	}
	entries, err := os.ReadDir(cfg.TmpDir)
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-time.Duration(cfg.TmpMaxAge) * time.Second)
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(cfg.TmpDir, e.Name())
			if err := os.Remove(path); err != nil {
				l.Warning("%s: stale tmp sweep: %s", path, err)
			}
		}
	}
}
