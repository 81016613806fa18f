package audio

import "encoding/binary"

// bytesPerSample is the width of one signed 16-bit PCM sample.
const bytesPerSample = 2

// FrameSamples returns the number of samples per channel in a frame of
// chunkMs milliseconds at sampleRate Hz. Mirrors int(rate * ms / 1000).
func FrameSamples(sampleRate, chunkMs int) int {
	return sampleRate * chunkMs / 1000
}

// FrameBytes returns the byte length of a mono 16-bit frame of chunkMs
// milliseconds at sampleRate Hz.
func FrameBytes(sampleRate, chunkMs int) int {
	return FrameSamples(sampleRate, chunkMs) * bytesPerSample
}

// Int16ToBytes converts samples to their little-endian byte representation.
// If dst has sufficient capacity it is reused.
func Int16ToBytes(dst []byte, samples []int16) []byte {
	n := len(samples) * bytesPerSample
	if cap(dst) < n {
		dst = make([]byte, n)
	}
	dst = dst[:n]
	for i, s := range samples {
		binary.LittleEndian.PutUint16(dst[i*bytesPerSample:], uint16(s))
	}
	return dst
}
