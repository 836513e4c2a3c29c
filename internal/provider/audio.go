package provider

import (
	"encoding/binary"
	"io"
	"math"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/tphakala/flac"

	"github.com/tphakala/seisnet-go/internal/errors"
)

// segmentTimeLayout names segment files by their UTC start time.
const segmentTimeLayout = "20060102T150405Z"

// SegmentName returns the file name of a segment starting at start.
func SegmentName(start time.Time, ext string) string {
	return start.UTC().Format(segmentTimeLayout) + ext
}

// decodeWAV reads the first channel of a PCM WAV stream. Samples are
// integer counts.
func decodeWAV(r io.ReadSeeker) (samples []float64, rate float64, err error) {
	decoder := wav.NewDecoder(r)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return nil, 0, errors.Newf("input is not a valid WAV file").
			Component(componentName).
			Category(errors.CategoryFileParsing).
			Build()
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, errors.New(err).
			Component(componentName).
			Category(errors.CategoryFileParsing).
			Context("format", "wav").
			Build()
	}

	channels := max(int(decoder.NumChans), 1)
	samples = make([]float64, 0, len(buf.Data)/channels)
	for i := 0; i < len(buf.Data); i += channels {
		samples = append(samples, float64(buf.Data[i]))
	}
	return samples, float64(decoder.SampleRate), nil
}

// decodeFLAC reads the first channel of a FLAC file.
func decodeFLAC(file *os.File) (samples []float64, rate float64, err error) {
	decoder, err := flac.NewDecoder(file)
	if err != nil {
		return nil, 0, errors.New(err).
			Component(componentName).
			Category(errors.CategoryFileParsing).
			Context("format", "flac").
			Build()
	}

	bytesPerSample := decoder.BitsPerSample / 8
	switch bytesPerSample {
	case 2, 3, 4:
	default:
		return nil, 0, errors.Newf("unsupported FLAC bit depth %d", decoder.BitsPerSample).
			Component(componentName).
			Category(errors.CategoryFileParsing).
			Build()
	}
	stride := bytesPerSample * max(decoder.NChannels, 1)

	for {
		frame, err := decoder.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, errors.New(err).
				Component(componentName).
				Category(errors.CategoryFileParsing).
				Context("format", "flac").
				Build()
		}
		for i := 0; i+bytesPerSample <= len(frame); i += stride {
			samples = append(samples, float64(pcmSample(frame[i:], bytesPerSample)))
		}
	}
	return samples, float64(decoder.SampleRate), nil
}

// pcmSample decodes one little-endian signed sample.
func pcmSample(b []byte, size int) int32 {
	switch size {
	case 2:
		return int32(int16(binary.LittleEndian.Uint16(b)))
	case 3:
		return int32(uint32(b[0])|uint32(b[1])<<8|uint32(b[2])<<16) << 8 >> 8
	default:
		return int32(binary.LittleEndian.Uint32(b))
	}
}

// WriteWAV encodes samples as mono 32-bit PCM. Samples are rounded to
// integer counts; gaps are written as zero.
func WriteWAV(w io.WriteSeeker, samples []float64, rate int) error {
	data := make([]int, len(samples))
	for i, v := range samples {
		if math.IsNaN(v) {
			continue
		}
		data[i] = int(math.Round(v))
	}

	enc := wav.NewEncoder(w, rate, 32, 1, 1)
	buf := &audio.IntBuffer{
		Data:           data,
		Format:         &audio.Format{SampleRate: rate, NumChannels: 1},
		SourceBitDepth: 32,
	}
	if err := enc.Write(buf); err != nil {
		return errors.New(err).Component(componentName).Category(errors.CategoryFileIO).Build()
	}
	if err := enc.Close(); err != nil {
		return errors.New(err).Component(componentName).Category(errors.CategoryFileIO).Build()
	}
	return nil
}
