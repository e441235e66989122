// internal/ingest/pipeline.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package ingest

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/mmp/carb/internal/blob"
	"github.com/mmp/carb/internal/blobstore"
	"github.com/mmp/carb/internal/config"
	"github.com/mmp/carb/internal/journal"
	"github.com/mmp/carb/internal/log"
	"github.com/mmp/carb/internal/parity"
	"github.com/mmp/carb/internal/pathutil"
	"github.com/mmp/carb/internal/pool"
)

// Counts summarizes one run's outcomes, used for the exit-time summary
// line.
type Counts struct {
	Ingested, Deduped, ParityCreated, Failed int
	BytesIngested                            int64
}

// Pipeline wires a normalized start directory through the worker pool:
// each worker pulls a path from the enumerator and runs
// stream+hash -> install -> parity in order, logging a Record to its
// own journal.WorkerLog.
type Pipeline struct {
	cfg      *config.Config
	store    *blobstore.Store
	parity   *parity.Creator
	run      *journal.Run
	startDir string
	cwd      string
	log      *log.Logger

	mu            sync.Mutex
	parityCreated []blob.ID
	counts        Counts
}

// NewPipeline builds a Pipeline for one run.
func NewPipeline(cfg *config.Config, store *blobstore.Store, pc *parity.Creator, run *journal.Run, startDir string, l *log.Logger) *Pipeline {
	cwd, _ := os.Getwd()
	return &Pipeline{cfg: cfg, store: store, parity: pc, run: run, startDir: startDir, cwd: cwd, log: l}
}

// Run drains the enumerator through the worker pool until it's
// exhausted, or a fatal error occurs. cutoff is nil for full mode.
func (p *Pipeline) Run(ctx context.Context, cutoff *time.Time) error {
	opts := EnumerateOptions{
		Cutoff:       cutoff,
		ExcludeGlobs: p.cfg.ExcludeGlobs,
		SelfDirs:     p.cfg.SelfDirs(),
	}
	items := Enumerate(p.startDir, opts, p.log)

	workerLogs := make([]*journal.WorkerLog, p.cfg.Jobs)
	defer func() {
		for _, wl := range workerLogs {
			if wl != nil {
				wl.Close()
			}
		}
	}()

	work := func(ctx context.Context, worker int, path string) error {
		wl := workerLogs[worker]
		if wl == nil {
			id := fmt.Sprintf("w%02d", worker)
			var err error
			wl, err = p.run.NewWorkerLog(id)
			if err != nil {
				return fmt.Errorf("fatal: can't open worker journal: %w", err)
			}
			workerLogs[worker] = wl
		}
		return p.processOne(path, wl)
	}

	return pool.Run(ctx, p.cfg.Jobs, items, work)
}

// processOne implements one item's stream+hash -> install -> parity
// sequence and the resulting journal append. Every error it can itself
// recover from is logged and swallowed; only a condition indicating
// the run itself can't continue (none arise on the happy path here) is
// returned.
func (p *Pipeline) processOne(path string, wl *journal.WorkerLog) error {
	rel, err := pathutil.Rel(path, p.startDir)
	if err != nil {
		p.log.Error("%s: %s", path, err)
		p.fail()
		return nil
	}

	fi, err := os.Lstat(path)
	if err != nil {
		p.log.Warning("%s: %s", path, err)
		p.fail()
		return nil
	}

	staged, err := Stream(path, p.cfg.TmpDir)
	if err != nil {
		p.log.Error("%v", err)
		p.fail()
		return nil
	}

	outcome, err := p.store.Install(staged.Path, staged.ID)
	if err != nil {
		p.log.Error("%s: %s", path, err)
		os.Remove(staged.Path)
		p.fail()
		return nil
	}

	rec := journal.Record{
		BlobID:   staged.ID,
		Cwd:      p.cwd,
		StartDir: p.startDir,
		AbsPath:  path,
		RelPath:  rel,
		Size:     fi.Size(),
		ModTime:  fi.ModTime(),
		Mode:     fi.Mode(),
	}
	if outcome == blobstore.Ingested {
		rec.Outcome = journal.Ingested
		p.succeed(true, fi.Size())
	} else {
		rec.Outcome = journal.Deduped
		p.succeed(false, 0)
	}

	if p.cfg.EnableMime {
		if mime, err := ProbeMIME(p.store.Path(staged.ID)); err == nil {
			rec.MIME, rec.HasMIME = mime, true
		}
	}

	if p.cfg.Par2 {
		blobPath := p.store.Path(staged.ID)
		if created := p.parity.Ensure(staged.ID, blobPath, p.cfg); created {
			p.noteParityCreated(staged.ID)
		}
	}

	if err := wl.Append(rec); err != nil {
		p.log.Error("%s: journal append: %s", path, err)
	}
	return nil
}

func (p *Pipeline) fail() {
	p.mu.Lock()
	p.counts.Failed++
	p.mu.Unlock()
}

func (p *Pipeline) succeed(ingested bool, size int64) {
	p.mu.Lock()
	if ingested {
		p.counts.Ingested++
		p.counts.BytesIngested += size
	} else {
		p.counts.Deduped++
	}
	p.mu.Unlock()
}

func (p *Pipeline) noteParityCreated(id blob.ID) {
	p.mu.Lock()
	p.counts.ParityCreated++
	p.parityCreated = append(p.parityCreated, id)
	p.mu.Unlock()
}

// Counts returns a snapshot of this run's outcome tallies.
func (p *Pipeline) Counts() Counts {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts
}

// ParityCreated returns the BlobIds whose parity was created this run,
// for journal.Run.Collate's par2_created file.
func (p *Pipeline) ParityCreated() []blob.ID {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]blob.ID, len(p.parityCreated))
	copy(out, p.parityCreated)
	return out
}
