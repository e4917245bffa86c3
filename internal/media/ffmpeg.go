package media

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
)

// Extractor turns a media file into transcribable audio using ffmpeg.
// It implements the audio-extraction capability consumed by the
// orchestrator; the command internals stay contained here.
type Extractor struct {
	ffmpegPath string
	workDir    string
	logger     *slog.Logger
}

func NewExtractor(ffmpegPath, workDir string, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Extractor{ffmpegPath: ffmpegPath, workDir: workDir, logger: logger}
}

// ExtractAudio produces a mono 16kHz WAV next to the work dir and returns
// its path.
func (e *Extractor) ExtractAudio(ctx context.Context, sourcePath string) (string, error) {
	base := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	out := filepath.Join(e.workDir, base+"_audio_16k.wav")

	// ffmpeg -y -i input -vn -ac 1 -ar 16000 -f wav output
	cmd := exec.CommandContext(ctx, e.ffmpegPath,
		"-y", "-i", sourcePath,
		"-vn",
		"-ac", "1", "-ar", "16000",
		"-f", "wav",
		out,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	e.logger.Info("media.extract.start", "source", sourcePath, "out", out)
	if err := cmd.Run(); err != nil {
		e.logger.Error("media.extract.failed", "source", sourcePath, "error", err, "stderr", tail(stderr.String(), 400))
		return "", fmt.Errorf("ffmpeg: %w", err)
	}
	e.logger.Info("media.extract.ok", "source", sourcePath, "out", out)
	return out, nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
