package sensor

// NumEMGChannels is the channel count of the sEMG acquisition unit.
const NumEMGChannels = 16

// EMGSample is one reading from the sEMG unit: the device sequence number and
// one scalar per electrode channel. The device's own clock is deliberately
// absent; receipt stamping is done by the recorder.
type EMGSample struct {
	Seq      uint64
	Channels [NumEMGChannels]float64
}

// Vec3 is a position or direction in the tracker's coordinate space (mm).
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// FingerName indexes the five fingers of a tracked hand.
type FingerName int

const (
	Thumb FingerName = iota
	Index
	Middle
	Ring
	Pinky
)

// String returns the lowercase finger name.
func (f FingerName) String() string {
	switch f {
	case Thumb:
		return "thumb"
	case Index:
		return "index"
	case Middle:
		return "middle"
	case Ring:
		return "ring"
	case Pinky:
		return "pinky"
	default:
		return "unknown"
	}
}

// Finger is one tracked finger.
type Finger struct {
	Name        FingerName
	TipPosition Vec3
	Direction   Vec3
	Extended    bool
}

// Hand is one tracked hand with enough pose information to reconstruct the
// gesture: palm frame plus per-finger tips and directions.
type Hand struct {
	Type         string // "left" or "right"
	Confidence   float64
	PalmPosition Vec3
	PalmNormal   Vec3
	Direction    Vec3
	GrabStrength float64
	Fingers      [5]Finger
}

// PoseFrame is one reading from the tracking camera: the device frame id and
// zero or more tracked hands.
type PoseFrame struct {
	FrameID uint64
	Hands   []Hand
}
