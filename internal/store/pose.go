package store

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/NeuroEngLabTAU/Fingures-Gestures-Recognition/internal/record"
	"github.com/NeuroEngLabTAU/Fingures-Gestures-Recognition/internal/sensor"
)

// The pose store is a CSV with one row per frame, carrying the primary
// (first) tracked hand: the subject gestures with a single instrumented arm,
// so that hand is the labeled one. Frames with no hand in view keep the row
// (for frame accounting) with empty pose columns.
var poseHeader = buildPoseHeader()

func buildPoseHeader() []string {
	h := []string{
		"t_ns", "frame_id", "hands",
		"hand_type", "confidence",
		"palm_x", "palm_y", "palm_z",
		"normal_x", "normal_y", "normal_z",
		"dir_x", "dir_y", "dir_z",
		"grab_strength",
	}
	for f := sensor.Thumb; f <= sensor.Pinky; f++ {
		name := f.String()
		h = append(h,
			name+"_tip_x", name+"_tip_y", name+"_tip_z",
			name+"_dir_x", name+"_dir_y", name+"_dir_z",
			name+"_extended",
		)
	}
	return h
}

// PoseWriter streams stamped pose frames to a Position's motion file.
// Implements the recorder's sample sink.
type PoseWriter struct {
	f *os.File
	w *csv.Writer
	n int
}

// CreatePose creates (truncates) the pose file and writes the header row.
func CreatePose(path string) (*PoseWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("store: create pose file: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(poseHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("store: write pose header: %w", err)
	}
	return &PoseWriter{f: f, w: w}, nil
}

func ftoa(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

func vecCols(row []string, v sensor.Vec3) []string {
	return append(row, ftoa(v.X), ftoa(v.Y), ftoa(v.Z))
}

// WriteSample appends one stamped frame.
func (w *PoseWriter) WriteSample(s record.Stamped[sensor.PoseFrame]) error {
	row := make([]string, 0, len(poseHeader))
	row = append(row,
		strconv.FormatInt(int64(s.At), 10),
		strconv.FormatUint(s.Value.FrameID, 10),
		strconv.Itoa(len(s.Value.Hands)),
	)

	if len(s.Value.Hands) == 0 {
		for len(row) < len(poseHeader) {
			row = append(row, "")
		}
	} else {
		h := s.Value.Hands[0]
		row = append(row, h.Type, ftoa(h.Confidence))
		row = vecCols(row, h.PalmPosition)
		row = vecCols(row, h.PalmNormal)
		row = vecCols(row, h.Direction)
		row = append(row, ftoa(h.GrabStrength))
		for _, f := range h.Fingers {
			row = vecCols(row, f.TipPosition)
			row = vecCols(row, f.Direction)
			row = append(row, strconv.FormatBool(f.Extended))
		}
	}

	if err := w.w.Write(row); err != nil {
		return fmt.Errorf("store: write pose row: %w", err)
	}
	w.n++
	return nil
}

// Count returns how many frames were written.
func (w *PoseWriter) Count() int { return w.n }

// Close flushes and closes the file.
func (w *PoseWriter) Close() error {
	w.w.Flush()
	if err := w.w.Error(); err != nil {
		w.f.Close()
		return fmt.Errorf("store: flush pose file: %w", err)
	}
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("store: close pose file: %w", err)
	}
	return nil
}

// ReadPose loads a pose file back. Only the primary hand is stored, so
// frames come back with zero or one hand.
func ReadPose(path string) ([]record.Stamped[sensor.PoseFrame], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("store: open pose file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("store: read pose file: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("store: pose file has no header")
	}

	out := make([]record.Stamped[sensor.PoseFrame], 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) != len(poseHeader) {
			return nil, fmt.Errorf("store: pose row %d has %d columns, want %d", i+1, len(row), len(poseHeader))
		}

		var s record.Stamped[sensor.PoseFrame]
		tns, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("store: pose row %d: bad timestamp: %w", i+1, err)
		}
		s.At = time.Duration(tns)
		if s.Value.FrameID, err = strconv.ParseUint(row[1], 10, 64); err != nil {
			return nil, fmt.Errorf("store: pose row %d: bad frame id: %w", i+1, err)
		}
		hands, err := strconv.Atoi(row[2])
		if err != nil {
			return nil, fmt.Errorf("store: pose row %d: bad hand count: %w", i+1, err)
		}
		if hands == 0 {
			out = append(out, s)
			continue
		}

		h, err := parseHandRow(row[3:])
		if err != nil {
			return nil, fmt.Errorf("store: pose row %d: %w", i+1, err)
		}
		s.Value.Hands = []sensor.Hand{h}
		out = append(out, s)
	}
	return out, nil
}

func parseHandRow(cols []string) (sensor.Hand, error) {
	var h sensor.Hand
	h.Type = cols[0]

	fs := make([]float64, 0, 11)
	for _, c := range cols[1:12] {
		v, err := strconv.ParseFloat(c, 64)
		if err != nil {
			return h, fmt.Errorf("bad pose value %q: %w", c, err)
		}
		fs = append(fs, v)
	}
	h.Confidence = fs[0]
	h.PalmPosition = sensor.Vec3{X: fs[1], Y: fs[2], Z: fs[3]}
	h.PalmNormal = sensor.Vec3{X: fs[4], Y: fs[5], Z: fs[6]}
	h.Direction = sensor.Vec3{X: fs[7], Y: fs[8], Z: fs[9]}
	h.GrabStrength = fs[10]

	base := 12
	for i := range h.Fingers {
		off := base + i*7
		var vals [6]float64
		for j := 0; j < 6; j++ {
			v, err := strconv.ParseFloat(cols[off+j], 64)
			if err != nil {
				return h, fmt.Errorf("bad finger value %q: %w", cols[off+j], err)
			}
			vals[j] = v
		}
		ext, err := strconv.ParseBool(cols[off+6])
		if err != nil {
			return h, fmt.Errorf("bad extended flag %q: %w", cols[off+6], err)
		}
		h.Fingers[i] = sensor.Finger{
			Name:        sensor.FingerName(i),
			TipPosition: sensor.Vec3{X: vals[0], Y: vals[1], Z: vals[2]},
			Direction:   sensor.Vec3{X: vals[3], Y: vals[4], Z: vals[5]},
			Extended:    ext,
		}
	}
	return h, nil
}
