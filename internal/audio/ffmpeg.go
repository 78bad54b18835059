package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"morgonpodd/internal/services"
)

// Decoder turns a non-WAV music asset into a clip at the requested rate.
type Decoder interface {
	Decode(ctx context.Context, path string, sampleRate int) (Clip, error)
}

// FFmpegDecoder decodes any ffmpeg-readable file to mono 16-bit PCM.
type FFmpegDecoder struct {
	Binary string
}

// Decode runs ffmpeg and collects raw samples from stdout.
func (d FFmpegDecoder) Decode(ctx context.Context, path string, sampleRate int) (Clip, error) {
	binary := strings.TrimSpace(d.Binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, binary,
		"-v", "error", "-nostdin",
		"-i", path,
		"-f", "s16le", "-acodec", "pcm_s16le",
		"-ac", "1", "-ar", strconv.Itoa(sampleRate),
		"pipe:1",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return Clip{}, services.Wrap(services.ErrExternalTool, "assemble", "decode music",
			strings.TrimSpace(stderr.String()), err)
	}
	return FromPCM16LE(stdout.Bytes(), sampleRate), nil
}

// MP3Encoder converts the assembled WAV to MP3 with ffmpeg.
type MP3Encoder struct {
	Binary  string
	Bitrate string
}

// Encode writes dst atomically; a partial file never appears under dst.
func (e MP3Encoder) Encode(ctx context.Context, src, dst string) error {
	binary := strings.TrimSpace(e.Binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	bitrate := strings.TrimSpace(e.Bitrate)
	if bitrate == "" {
		bitrate = "128k"
	}
	tmp := dst + ".partial"
	cmd := exec.CommandContext(ctx, binary,
		"-y", "-v", "error", "-nostdin",
		"-i", src,
		"-codec:a", "libmp3lame", "-b:a", bitrate, "-ac", "1",
		"-f", "mp3", tmp,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		_ = os.Remove(tmp)
		return services.Wrap(services.ErrExternalTool, "assemble", "encode mp3",
			strings.TrimSpace(string(output)), err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename mp3 into place: %w", err)
	}
	return nil
}
