// Package store persists a Position's three artifacts (biosignal waveform,
// motion pose table, plain-text log) plus the dataset-level catalog.
//
// Directory layout, one Position per leaf:
//
//	<dataset_dir>/<subject>/S<sitting>/P<position>/
//	    emg_<subject>_S<sitting>_P<position>.mpk
//	    pose_<subject>_S<sitting>_P<position>.csv
//	    log_<subject>_S<sitting>_P<position>.txt
package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// PositionPaths locates one Position's artifacts.
type PositionPaths struct {
	Dir      string
	Waveform string
	Pose     string
	Log      string
}

// Layout computes the artifact paths for a Position.
func Layout(root, subject string, sitting, position int) PositionPaths {
	dir := filepath.Join(root, subject, fmt.Sprintf("S%d", sitting), fmt.Sprintf("P%d", position))
	stem := fmt.Sprintf("%s_S%d_P%d", subject, sitting, position)
	return PositionPaths{
		Dir:      dir,
		Waveform: filepath.Join(dir, "emg_"+stem+".mpk"),
		Pose:     filepath.Join(dir, "pose_"+stem+".csv"),
		Log:      filepath.Join(dir, "log_"+stem+".txt"),
	}
}

// MkDirs creates the Position directory.
func (p PositionPaths) MkDirs() error {
	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return fmt.Errorf("store: create position dir: %w", err)
	}
	return nil
}
