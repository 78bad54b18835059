package audio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"morgonpodd/internal/fileutil"
)

const (
	wavFormatPCM        = 1
	wavFormatIEEEFloat  = 3
	wavFormatExtensible = 0xFFFE
	wavHeaderSize       = 44
)

// ErrInvalidWAV reports a file that is not a decodable RIFF/WAVE document.
var ErrInvalidWAV = errors.New("invalid wav")

// Clip is mono 16-bit PCM audio at a fixed sample rate.
type Clip struct {
	SampleRate int
	Samples    []int16
}

// Duration returns the playback length of the clip.
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}

// DurationMs returns the playback length rounded to milliseconds.
func (c Clip) DurationMs() int64 {
	return samplesToMillis(int64(len(c.Samples)), c.SampleRate)
}

// Silence returns a zero-filled clip of the given duration.
func Silence(sampleRate int, d time.Duration) Clip {
	n := durationToSamples(d, sampleRate)
	return Clip{SampleRate: sampleRate, Samples: make([]int16, n)}
}

// FromPCM16LE wraps raw little-endian 16-bit mono samples. A trailing odd byte is dropped.
func FromPCM16LE(data []byte, sampleRate int) Clip {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return Clip{SampleRate: sampleRate, Samples: samples}
}

// WAVInfo describes the fmt and data chunks of a WAV file.
type WAVInfo struct {
	AudioFormat   int
	Channels      int
	SampleRate    int
	BitsPerSample int
	DataBytes     int64
}

// Frames returns the number of sample frames in the data chunk.
func (i WAVInfo) Frames() int64 {
	frame := int64(i.Channels * i.BitsPerSample / 8)
	if frame <= 0 {
		return 0
	}
	return i.DataBytes / frame
}

// DurationMs returns the playback length of the data chunk rounded to milliseconds.
func (i WAVInfo) DurationMs() int64 {
	return samplesToMillis(i.Frames(), i.SampleRate)
}

// ReadWAVInfo parses only the headers of a WAV file.
func ReadWAVInfo(path string) (WAVInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return WAVInfo{}, err
	}
	defer f.Close()
	info, _, err := readHeaders(bufio.NewReader(f))
	return info, err
}

// ReadWAV decodes a WAV file into a mono clip, downmixing multi-channel audio.
func ReadWAV(path string) (Clip, WAVInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return Clip{}, WAVInfo{}, err
	}
	defer f.Close()
	return DecodeWAV(bufio.NewReader(f))
}

// DecodeWAV decodes 8/16/24-bit integer or 32-bit float PCM into a mono clip.
func DecodeWAV(r io.Reader) (Clip, WAVInfo, error) {
	info, data, err := readHeaders(r)
	if err != nil {
		return Clip{}, info, err
	}
	raw, err := io.ReadAll(io.LimitReader(data, info.DataBytes))
	if err != nil {
		return Clip{}, info, fmt.Errorf("read wav data: %w", err)
	}
	info.DataBytes = int64(len(raw))

	width := info.BitsPerSample / 8
	frameSize := width * info.Channels
	frames := len(raw) / frameSize
	samples := make([]int16, frames)
	for f := 0; f < frames; f++ {
		var sum float64
		for ch := 0; ch < info.Channels; ch++ {
			off := f*frameSize + ch*width
			sum += sampleAt(raw[off:off+width], info.AudioFormat)
		}
		samples[f] = toInt16(sum / float64(info.Channels))
	}
	return Clip{SampleRate: info.SampleRate, Samples: samples}, info, nil
}

// sampleAt returns one sample normalized to [-1, 1].
func sampleAt(b []byte, format int) float64 {
	switch len(b) {
	case 1:
		return (float64(b[0]) - 128) / 128
	case 2:
		return float64(int16(binary.LittleEndian.Uint16(b))) / 32768
	case 3:
		v := int32(b[0]) | int32(b[1])<<8 | int32(int8(b[2]))<<16
		return float64(v) / 8388608
	case 4:
		if format == wavFormatIEEEFloat {
			return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		}
		return float64(int32(binary.LittleEndian.Uint32(b))) / 2147483648
	}
	return 0
}

func toInt16(v float64) int16 {
	switch {
	case v >= 1:
		return math.MaxInt16
	case v <= -1:
		return math.MinInt16
	}
	return int16(math.Round(v * 32767))
}

// readHeaders consumes chunks up to the start of the data chunk.
func readHeaders(r io.Reader) (WAVInfo, io.Reader, error) {
	var info WAVInfo
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return info, nil, fmt.Errorf("%w: short header: %v", ErrInvalidWAV, err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return info, nil, fmt.Errorf("%w: missing RIFF/WAVE signature", ErrInvalidWAV)
	}

	haveFmt := false
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return info, nil, fmt.Errorf("%w: no data chunk: %v", ErrInvalidWAV, err)
		}
		id := string(hdr[0:4])
		size := int64(binary.LittleEndian.Uint32(hdr[4:8]))
		switch id {
		case "fmt ":
			if size < 16 {
				return info, nil, fmt.Errorf("%w: fmt chunk too small", ErrInvalidWAV)
			}
			body := make([]byte, size+size%2)
			if _, err := io.ReadFull(r, body); err != nil {
				return info, nil, fmt.Errorf("%w: fmt chunk: %v", ErrInvalidWAV, err)
			}
			info.AudioFormat = int(binary.LittleEndian.Uint16(body[0:2]))
			info.Channels = int(binary.LittleEndian.Uint16(body[2:4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(body[14:16]))
			if info.AudioFormat == wavFormatExtensible && size >= 26 {
				info.AudioFormat = int(binary.LittleEndian.Uint16(body[24:26]))
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return info, nil, fmt.Errorf("%w: data chunk before fmt chunk", ErrInvalidWAV)
			}
			if err := info.validate(); err != nil {
				return info, nil, err
			}
			if size == math.MaxUint32 {
				size = math.MaxInt64
			}
			info.DataBytes = size
			return info, r, nil
		default:
			if _, err := io.CopyN(io.Discard, r, size+size%2); err != nil {
				return info, nil, fmt.Errorf("%w: skip %q chunk: %v", ErrInvalidWAV, id, err)
			}
		}
	}
}

func (i WAVInfo) validate() error {
	if i.Channels < 1 {
		return fmt.Errorf("%w: %d channels", ErrInvalidWAV, i.Channels)
	}
	if i.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", ErrInvalidWAV, i.SampleRate)
	}
	switch {
	case i.AudioFormat == wavFormatPCM && (i.BitsPerSample == 8 || i.BitsPerSample == 16 || i.BitsPerSample == 24 || i.BitsPerSample == 32):
	case i.AudioFormat == wavFormatIEEEFloat && i.BitsPerSample == 32:
	default:
		return fmt.Errorf("%w: unsupported encoding format=%d bits=%d", ErrInvalidWAV, i.AudioFormat, i.BitsPerSample)
	}
	return nil
}

// EncodeWAV writes the clip as a canonical 44-byte-header PCM WAV.
func EncodeWAV(w io.Writer, clip Clip) error {
	dataBytes := int64(len(clip.Samples)) * 2
	if _, err := w.Write(wavHeader(clip.SampleRate, dataBytes)); err != nil {
		return err
	}
	buf := make([]byte, 0, 8192)
	for _, s := range clip.Samples {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(s))
		if len(buf) == cap(buf) {
			if _, err := w.Write(buf); err != nil {
				return err
			}
			buf = buf[:0]
		}
	}
	if len(buf) > 0 {
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

// WriteWAV encodes the clip and atomically writes it to path.
func WriteWAV(path string, clip Clip) error {
	var buf bytes.Buffer
	buf.Grow(wavHeaderSize + len(clip.Samples)*2)
	if err := EncodeWAV(&buf, clip); err != nil {
		return err
	}
	return fileutil.WriteFileAtomic(path, buf.Bytes(), 0o644)
}

func wavHeader(sampleRate int, dataBytes int64) []byte {
	h := make([]byte, 0, wavHeaderSize)
	h = append(h, "RIFF"...)
	h = binary.LittleEndian.AppendUint32(h, uint32(36+dataBytes))
	h = append(h, "WAVE"...)
	h = append(h, "fmt "...)
	h = binary.LittleEndian.AppendUint32(h, 16)
	h = binary.LittleEndian.AppendUint16(h, wavFormatPCM)
	h = binary.LittleEndian.AppendUint16(h, 1)
	h = binary.LittleEndian.AppendUint32(h, uint32(sampleRate))
	h = binary.LittleEndian.AppendUint32(h, uint32(sampleRate*2))
	h = binary.LittleEndian.AppendUint16(h, 2)
	h = binary.LittleEndian.AppendUint16(h, 16)
	h = append(h, "data"...)
	h = binary.LittleEndian.AppendUint32(h, uint32(dataBytes))
	return h
}

// wavWriter streams samples to disk and patches the header sizes on Close.
type wavWriter struct {
	f       *os.File
	bw      *bufio.Writer
	rate    int
	samples int64
	scratch []byte
}

func createWAV(path string, sampleRate int) (*wavWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := &wavWriter{f: f, bw: bufio.NewWriterSize(f, 64*1024), rate: sampleRate}
	if _, err := w.bw.Write(wavHeader(sampleRate, 0)); err != nil {
		_ = f.Close()
		return nil, err
	}
	return w, nil
}

func (w *wavWriter) writeSamples(samples []int16) error {
	w.scratch = w.scratch[:0]
	for _, s := range samples {
		w.scratch = binary.LittleEndian.AppendUint16(w.scratch, uint16(s))
	}
	if _, err := w.bw.Write(w.scratch); err != nil {
		return err
	}
	w.samples += int64(len(samples))
	return nil
}

func (w *wavWriter) writeSilence(n int64) error {
	var zero [4096]byte
	remaining := n * 2
	for remaining > 0 {
		step := min(remaining, int64(len(zero)))
		if _, err := w.bw.Write(zero[:step]); err != nil {
			return err
		}
		remaining -= step
	}
	w.samples += n
	return nil
}

func (w *wavWriter) Close() error {
	if err := w.bw.Flush(); err != nil {
		_ = w.f.Close()
		return err
	}
	if _, err := w.f.WriteAt(wavHeader(w.rate, w.samples*2), 0); err != nil {
		_ = w.f.Close()
		return err
	}
	if err := w.f.Sync(); err != nil {
		_ = w.f.Close()
		return err
	}
	return w.f.Close()
}

func samplesToMillis(samples int64, sampleRate int) int64 {
	if sampleRate <= 0 {
		return 0
	}
	rate := int64(sampleRate)
	return (samples*1000 + rate/2) / rate
}

func durationToSamples(d time.Duration, sampleRate int) int64 {
	if d <= 0 || sampleRate <= 0 {
		return 0
	}
	return int64(d) * int64(sampleRate) / int64(time.Second)
}
