package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/nickandbro/slither-world-sub002/internal/persistence/journal"
	"github.com/nickandbro/slither-world-sub002/internal/persistence/snapshot"
	"github.com/nickandbro/slither-world-sub002/internal/sim/tuning"
	"github.com/nickandbro/slither-world-sub002/internal/sim/world"
)

// errRangeDone stops the journal scan once -to_tick has been passed.
var errRangeDone = errors.New("replay range complete")

func main() {
	var (
		journalDir = flag.String("journal", "", "directory containing ticks-*.jsonl.zst")
		snapPath   = flag.String("snapshot", "", "path to .snap.zst to resume from (optional)")
		worldID    = flag.String("world", "world_1", "world id (ignored when -snapshot is given)")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "tuning the recorded run used")
		fromTick   = flag.Uint64("from_tick", 0, "start verifying digests from tick (inclusive, optional)")
		toTick     = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
	)
	flag.Parse()

	if *journalDir == "" {
		fmt.Fprintln(os.Stderr, "missing -journal")
		os.Exit(2)
	}

	logger := log.New(os.Stdout, "[replay] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", *tuningPath)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}

	var w *world.World
	if *snapPath != "" {
		snap, err := snapshot.ReadSnapshot(*snapPath)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		// Digests only reproduce under the movement constants the run used.
		tune.TickRateHz = snap.TickRateHz
		tune.Movement.TurnRateDegPerSec = snap.TurnRateDegPerSec
		tune.Movement.BaseSpeedDegPerSec = snap.BaseSpeedDegPerSec
		tune.Movement.BoostSpeedMult = snap.BoostSpeedMult

		w = world.New(world.FromTuning(snap.Header.WorldID, tune))
		if err := w.ImportSnapshot(snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		logger.Printf("resumed snapshot world=%s tick=%d players=%d", snap.Header.WorldID, snap.Header.Tick, len(snap.Players))
	} else {
		w = world.New(world.FromTuning(*worldID, tune))
	}

	startTick := w.CurrentTick()
	verifyFrom := *fromTick
	if verifyFrom < startTick {
		verifyFrom = startTick
	}

	files, err := journal.ListFiles(*journalDir)
	if err != nil {
		logger.Fatalf("list journal: %v", err)
	}
	if len(files) == 0 {
		logger.Fatalf("no journal files found in %s", *journalDir)
	}

	var checked uint64
	for _, path := range files {
		err := journal.ForEach(path, func(entry world.TickEntry) error {
			if entry.Tick < startTick {
				return nil
			}
			if *toTick != 0 && entry.Tick > *toTick {
				return errRangeDone
			}
			if entry.Tick != w.CurrentTick() {
				return fmt.Errorf("tick mismatch: want=%d got=%d (file=%s)", w.CurrentTick(), entry.Tick, filepath.Base(path))
			}

			joins := make([]world.JoinRequest, 0, len(entry.Joins))
			for _, j := range entry.Joins {
				joins = append(joins, world.JoinRequest{Name: j.Name})
			}
			admin := make([]world.AdminRequest, 0, len(entry.Admin))
			for _, rec := range entry.Admin {
				if req, ok := world.AdminRequestFromRecord(rec); ok {
					admin = append(admin, req)
				}
			}

			tick, digest := w.StepOnce(0, joins, entry.Leaves, admin, entry.Inputs)
			if tick != entry.Tick {
				return fmt.Errorf("internal tick mismatch: stepped=%d entry=%d (file=%s)", tick, entry.Tick, filepath.Base(path))
			}
			if tick >= verifyFrom {
				checked++
				if digest != entry.Digest {
					return fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", tick, digest, entry.Digest)
				}
			}
			return nil
		})
		if errors.Is(err, errRangeDone) {
			break
		}
		if err != nil {
			logger.Fatalf("replay: %v", err)
		}
	}

	logger.Printf("replay ok: checked=%d ticks (start tick=%d, end tick=%d)", checked, startTick, w.CurrentTick())
}
