package leaptrack

import (
	"encoding/json"
	"fmt"

	"github.com/NeuroEngLabTAU/Fingures-Gestures-Recognition/internal/sensor"
)

// The tracking service emits one JSON object per websocket message. Frames
// carry an "id"; the greeting and event messages do not and are skipped.
type wireFrame struct {
	ID         int64           `json:"id"`
	Hands      []wireHand      `json:"hands"`
	Pointables []wirePointable `json:"pointables"`
}

type wireHand struct {
	ID           int64      `json:"id"`
	Type         string     `json:"type"`
	Confidence   float64    `json:"confidence"`
	PalmPosition [3]float64 `json:"palmPosition"`
	PalmNormal   [3]float64 `json:"palmNormal"`
	Direction    [3]float64 `json:"direction"`
	GrabStrength float64    `json:"grabStrength"`
}

type wirePointable struct {
	HandID      int64      `json:"handId"`
	Type        int        `json:"type"` // 0=thumb .. 4=pinky
	TipPosition [3]float64 `json:"tipPosition"`
	Direction   [3]float64 `json:"direction"`
	Extended    bool       `json:"extended"`
}

func vec3(a [3]float64) sensor.Vec3 {
	return sensor.Vec3{X: a[0], Y: a[1], Z: a[2]}
}

// parseFrame decodes one websocket message. ok=false means the message was a
// non-frame service message (greeting, device event) and carries no pose.
func parseFrame(data []byte) (sensor.PoseFrame, bool, error) {
	var zero sensor.PoseFrame

	var wf wireFrame
	if err := json.Unmarshal(data, &wf); err != nil {
		return zero, false, fmt.Errorf("leaptrack: decode frame: %w", err)
	}
	if wf.ID == 0 && len(wf.Hands) == 0 {
		return zero, false, nil
	}

	pf := sensor.PoseFrame{FrameID: uint64(wf.ID)}
	for _, wh := range wf.Hands {
		h := sensor.Hand{
			Type:         wh.Type,
			Confidence:   wh.Confidence,
			PalmPosition: vec3(wh.PalmPosition),
			PalmNormal:   vec3(wh.PalmNormal),
			Direction:    vec3(wh.Direction),
			GrabStrength: wh.GrabStrength,
		}
		for i := range h.Fingers {
			h.Fingers[i].Name = sensor.FingerName(i)
		}
		for _, wp := range wf.Pointables {
			if wp.HandID != wh.ID || wp.Type < 0 || wp.Type > 4 {
				continue
			}
			h.Fingers[wp.Type] = sensor.Finger{
				Name:        sensor.FingerName(wp.Type),
				TipPosition: vec3(wp.TipPosition),
				Direction:   vec3(wp.Direction),
				Extended:    wp.Extended,
			}
		}
		pf.Hands = append(pf.Hands, h)
	}
	return pf, true, nil
}
