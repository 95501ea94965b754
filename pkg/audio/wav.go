package audio

import (
	"encoding/binary"
	"fmt"
)

// wavHeaderSize is the fixed size of the RIFF + fmt + data chunk headers
// preceding the PCM payload.
const wavHeaderSize = 44

// bitsPerSample is fixed at 16: the pipeline carries int16 PCM end to end.
const bitsPerSample = 16

// EncodeWAV wraps raw little-endian int16 PCM in a WAV (RIFF) container.
// The layout is the canonical 44-byte header:
//
//	"RIFF" | 36+dataSize | "WAVE" | "fmt " | 16 | PCM(1) | channels |
//	sampleRate | byteRate | blockAlign | bitsPerSample | "data" | dataSize
//
// All multi-byte fields are little-endian.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	dataSize := len(pcm)
	blockAlign := channels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign

	buf := make([]byte, wavHeaderSize+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16) // fmt sub-chunk size
	binary.LittleEndian.PutUint16(buf[20:22], 1)  // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))

	copy(buf[wavHeaderSize:], pcm)
	return buf
}

// DecodeWAV extracts the PCM payload and format from a WAV container
// produced by [EncodeWAV] (single fmt + data chunk, 16-bit PCM). It returns
// an error for truncated buffers, non-PCM formats, or bit depths other
// than 16.
func DecodeWAV(wav []byte) (pcm []byte, sampleRate, channels int, err error) {
	if len(wav) < wavHeaderSize {
		return nil, 0, 0, fmt.Errorf("audio: wav too short: %d bytes", len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, 0, 0, fmt.Errorf("audio: not a RIFF/WAVE container")
	}
	if string(wav[12:16]) != "fmt " {
		return nil, 0, 0, fmt.Errorf("audio: missing fmt sub-chunk")
	}
	if format := binary.LittleEndian.Uint16(wav[20:22]); format != 1 {
		return nil, 0, 0, fmt.Errorf("audio: unsupported audio format %d (want PCM)", format)
	}
	if bits := binary.LittleEndian.Uint16(wav[34:36]); bits != bitsPerSample {
		return nil, 0, 0, fmt.Errorf("audio: unsupported bit depth %d (want %d)", bits, bitsPerSample)
	}
	if string(wav[36:40]) != "data" {
		return nil, 0, 0, fmt.Errorf("audio: missing data sub-chunk")
	}

	channels = int(binary.LittleEndian.Uint16(wav[22:24]))
	sampleRate = int(binary.LittleEndian.Uint32(wav[24:28]))
	dataSize := int(binary.LittleEndian.Uint32(wav[40:44]))
	if wavHeaderSize+dataSize > len(wav) {
		return nil, 0, 0, fmt.Errorf("audio: data sub-chunk size %d exceeds buffer", dataSize)
	}

	return wav[wavHeaderSize : wavHeaderSize+dataSize], sampleRate, channels, nil
}
