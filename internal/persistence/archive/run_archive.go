package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/APSIMInitiative/ApsimX-sub030/internal/persistence/snapshot"
)

type RunArchiveMeta struct {
	RunID     string `json:"run_id"`
	EndDay    int    `json:"end_day"`
	Digest    string `json:"digest"`
	Snapshot  string `json:"snapshot"`
	CreatedAt string `json:"created_at"`
	Organs    int    `json:"organs"`
}

// ArchiveEndSnapshot copies the snapshot of an ended plant into
// `runDir/archive/day_<NNNNNN>/` next to a meta.json. Snapshots of a live plant
// are left alone and report archived=false.
func ArchiveEndSnapshot(runDir, snapshotPath string, snap snapshot.SnapshotV1) (archivedPath string, archived bool, err error) {
	if !snap.Ended {
		return "", false, nil
	}
	if snap.Header.Day <= 0 {
		return "", false, fmt.Errorf("ended snapshot has day %d", snap.Header.Day)
	}

	archiveDir := filepath.Join(runDir, "archive", fmt.Sprintf("day_%06d", snap.Header.Day))
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", false, err
	}

	dst := filepath.Join(archiveDir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return "", false, err
	}

	meta := RunArchiveMeta{
		RunID:     snap.Header.RunID,
		EndDay:    snap.Header.Day,
		Digest:    snap.Header.Digest,
		Snapshot:  filepath.Base(dst),
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
		Organs:    len(snap.Organs),
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", false, err
	}
	if err := os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644); err != nil {
		return "", false, err
	}
	return dst, true, nil
}

// ReadMeta loads the meta.json written beside an archived snapshot.
func ReadMeta(archivedPath string) (RunArchiveMeta, error) {
	var m RunArchiveMeta
	b, err := os.ReadFile(filepath.Join(filepath.Dir(archivedPath), "meta.json"))
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(b, &m)
	return m, err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
