package emgbridge

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/NeuroEngLabTAU/Fingures-Gestures-Recognition/internal/sensor"
)

// Wire format, one frame per sample:
//
//	4 bytes  big-endian payload length
//	8 bytes  big-endian device sequence number
//	16 x 4   big-endian IEEE-754 float32, one per channel
//
// The length prefix delimits frames in the TCP byte stream. An unexpected
// length means the stream is corrupt; the reader does not scan forward for a
// plausible frame, it reports the stream lost.
const (
	framePayloadLen = 8 + sensor.NumEMGChannels*4
	maxPayloadLen   = 4096
)

// EncodeFrame appends one wire frame for the sample to dst.
// Used by the loopback fixture in tests and by bridge diagnostics.
func EncodeFrame(dst []byte, s sensor.EMGSample) []byte {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], framePayloadLen)
	dst = append(dst, hdr[:]...)

	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], s.Seq)
	dst = append(dst, seq[:]...)

	var ch [4]byte
	for i := 0; i < sensor.NumEMGChannels; i++ {
		binary.BigEndian.PutUint32(ch[:], math.Float32bits(float32(s.Channels[i])))
		dst = append(dst, ch[:]...)
	}
	return dst
}

// decodeFrame parses one complete frame from the head of buf.
// Returns the sample and the number of bytes consumed, or consumed=0 when buf
// does not yet hold a complete frame.
func decodeFrame(buf []byte) (sensor.EMGSample, int, error) {
	var s sensor.EMGSample

	if len(buf) < 4 {
		return s, 0, nil
	}
	payloadLen := binary.BigEndian.Uint32(buf[:4])
	if payloadLen != framePayloadLen {
		if payloadLen > maxPayloadLen {
			return s, 0, fmt.Errorf("emgbridge: bad frame length %d", payloadLen)
		}
		return s, 0, fmt.Errorf("emgbridge: unexpected payload length %d, want %d", payloadLen, framePayloadLen)
	}
	if len(buf) < 4+int(payloadLen) {
		return s, 0, nil
	}

	payload := buf[4 : 4+payloadLen]
	s.Seq = binary.BigEndian.Uint64(payload[:8])
	for i := 0; i < sensor.NumEMGChannels; i++ {
		bits := binary.BigEndian.Uint32(payload[8+i*4 : 12+i*4])
		s.Channels[i] = float64(math.Float32frombits(bits))
	}
	return s, 4 + int(payloadLen), nil
}
