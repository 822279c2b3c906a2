package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/APSIMInitiative/ApsimX-sub030/internal/persistence/archive"
	"github.com/APSIMInitiative/ApsimX-sub030/internal/persistence/indexdb"
	daylog "github.com/APSIMInitiative/ApsimX-sub030/internal/persistence/log"
	"github.com/APSIMInitiative/ApsimX-sub030/internal/persistence/snapshot"
	"github.com/APSIMInitiative/ApsimX-sub030/internal/sim/forcing"
	"github.com/APSIMInitiative/ApsimX-sub030/internal/sim/plant"
	"github.com/APSIMInitiative/ApsimX-sub030/internal/sim/tuning"
	"github.com/APSIMInitiative/ApsimX-sub030/internal/transport/ws"
)

var (
	runTuningPath  string
	runForcingPath string
	runDataDir     string
	runDBPath      string
	runNoIndex     bool
	runObserveAddr string
	runDays        int
	runResume      string
	runPace        time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation and record its days",
	Long: `Steps the plant from day 1 (or from --resume) until the tuning's day count,
the forcing's end event, or an interrupt.

Layout under --data:
  <run id>/days/days-NNNNNN.jsonl.zst   one record per day
  <run id>/snapshots/day-NNNNNN.snap.zst
  index.sqlite                          unless --no-index`,
	RunE: runSim,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runTuningPath, "tuning", "configs/tuning.yaml", "tuning file (empty uses defaults)")
	f.StringVar(&runForcingPath, "forcing", "configs/forcing.yaml", "forcing file")
	f.StringVar(&runDataDir, "data", "./data", "output directory")
	f.StringVar(&runDBPath, "db", "", "SQLite index path (default <data>/index.sqlite)")
	f.BoolVar(&runNoIndex, "no-index", false, "skip the SQLite index")
	f.StringVar(&runObserveAddr, "observe", "", "serve day records to websocket observers on this address, e.g. :8090")
	f.IntVar(&runDays, "days", 0, "override the tuning's day count")
	f.StringVar(&runResume, "resume", "", "continue from this snapshot")
	f.DurationVar(&runPace, "pace", 0, "delay between days, for observers")
}

func runSim(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	tu, err := tuning.Load(runTuningPath)
	if err != nil {
		return fmt.Errorf("load tuning: %w", err)
	}
	if runDays > 0 {
		tu.Days = runDays
	}
	fs, err := forcing.Load(runForcingPath)
	if err != nil {
		return fmt.Errorf("load forcing: %w", err)
	}

	p, err := plant.New(tu, logger)
	if err != nil {
		return err
	}
	if runResume != "" {
		snap, err := snapshot.ReadSnapshot(runResume)
		if err != nil {
			return fmt.Errorf("read snapshot: %w", err)
		}
		if err := p.Import(snap); err != nil {
			return fmt.Errorf("import snapshot: %w", err)
		}
		logger.Info("resumed", zap.String("run_id", p.RunID()), zap.Int("day", p.Day()))
	}
	if p.RunID() == "" {
		p.SetRunID(tu.RunIDPrefix + "-" + uuid.NewString())
	}
	runID := p.RunID()
	runDir := filepath.Join(runDataDir, runID)
	snapDir := filepath.Join(runDir, "snapshots")

	days := daylog.NewDayLogger(runDir, tu.RotateEveryDays)
	defer func() {
		if err := days.Close(); err != nil {
			logger.Warn("close day log", zap.Error(err))
		}
	}()

	var idx *indexdb.SQLiteIndex
	if !runNoIndex {
		dbPath := runDBPath
		if dbPath == "" {
			dbPath = filepath.Join(runDataDir, "index.sqlite")
		}
		idx, err = indexdb.OpenSQLite(dbPath)
		if err != nil {
			return fmt.Errorf("open index: %w", err)
		}
		defer func() {
			if st := idx.Stats(); st.DropDayTotal+st.DropSnapshotTotal > 0 {
				logger.Warn("index dropped writes", zap.Uint64("days", st.DropDayTotal), zap.Uint64("snapshots", st.DropSnapshotTotal))
			}
			_ = idx.Close()
		}()
		tj, err := tu.JSON()
		if err != nil {
			return err
		}
		if err := idx.BeginRun(runID, tj); err != nil {
			return fmt.Errorf("index run: %w", err)
		}
	}

	var hub *ws.Hub
	if runObserveAddr != "" {
		hub = ws.NewHub(logger, 0)
		stop := serveObservers(ctx, runObserveAddr, hub)
		defer stop()
	}

	saveSnapshot := func() error {
		snap, err := p.Export()
		if err != nil {
			return err
		}
		path := filepath.Join(snapDir, snapshot.Name(snap.Header.Day))
		if err := snapshot.WriteSnapshot(path, snap); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
		idx.RecordSnapshot(path, snap)
		logger.Debug("snapshot written", zap.String("path", path), zap.Int("day", snap.Header.Day))
		archived, ok, err := archive.ArchiveEndSnapshot(runDir, path, snap)
		if err != nil {
			return fmt.Errorf("archive snapshot: %w", err)
		}
		if ok {
			logger.Info("end snapshot archived", zap.String("path", archived))
		}
		return nil
	}

	logger.Info("run started",
		zap.String("run_id", runID),
		zap.Int("from_day", p.Day()+1),
		zap.Int("to_day", tu.Days),
		zap.String("dir", runDir))

	var last plant.DayRecord
	for p.Day() < tu.Days && !p.Ended() {
		if err := ctx.Err(); err != nil {
			logger.Info("interrupted", zap.Int("day", p.Day()))
			break
		}
		rec, err := p.Step(fs.At(p.Day() + 1))
		if err != nil {
			// A failed step leaves the plant mid-day, so nothing is snapshot;
			// the last periodic snapshot and the day log stay the resume point.
			logger.Error("step failed", zap.Int("day", p.Day()), zap.Error(err))
			return err
		}
		last = rec
		if err := days.WriteDay(rec); err != nil {
			return fmt.Errorf("day log: %w", err)
		}
		_ = idx.WriteDay(rec)
		if hub != nil {
			if err := hub.Broadcast(rec); err != nil {
				logger.Warn("broadcast", zap.Error(err))
			}
		}
		if tu.SnapshotEveryDays > 0 && rec.Day%tu.SnapshotEveryDays == 0 {
			if err := saveSnapshot(); err != nil {
				return err
			}
		}
		if runPace > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(runPace):
			}
		}
	}
	if tu.SnapshotEveryDays <= 0 || p.Day()%tu.SnapshotEveryDays != 0 {
		if err := saveSnapshot(); err != nil {
			return err
		}
	}

	logger.Info("run finished",
		zap.String("run_id", runID),
		zap.Int("day", p.Day()),
		zap.Bool("ended", p.Ended()),
		zap.String("digest", p.Digest()))
	fmt.Fprintf(cmd.OutOrStdout(), "run %s day=%d lai=%.4f leaf_live_wt=%.4f digest=%s\n",
		runID, p.Day(), last.Leaf.LAI, last.Leaf.Live.Wt(), p.Digest())
	return nil
}

// serveObservers starts the websocket endpoint and returns a func that shuts
// it down and disconnects every observer.
func serveObservers(ctx context.Context, addr string, hub *ws.Hub) func() {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/observe", hub.Handler())
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok\n"))
	})
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("observers listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("observer server", zap.Error(err))
		}
	}()
	return func() {
		hub.Close()
		ctx2, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx2)
	}
}
