package media

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strconv"

	"github.com/courtfile/media-ingest/internal/entity"
)

// SilenceAnalyzer detects silent stretches with ffmpeg's silencedetect
// filter. The detection parameters are the filter's, not ours: spans quieter
// than NoiseDB for at least MinDuration seconds count as silence.
type SilenceAnalyzer struct {
	ffmpegPath  string
	noiseDB     float64
	minDuration float64
	logger      *slog.Logger
}

func NewSilenceAnalyzer(ffmpegPath string, logger *slog.Logger) *SilenceAnalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &SilenceAnalyzer{
		ffmpegPath:  ffmpegPath,
		noiseDB:     -35,
		minDuration: 1.0,
		logger:      logger,
	}
}

// AnalyzeSilence runs silencedetect over the audio and returns the detected
// intervals in milliseconds.
func (a *SilenceAnalyzer) AnalyzeSilence(ctx context.Context, audioPath string) ([]entity.SilenceInterval, error) {
	filter := fmt.Sprintf("silencedetect=noise=%.0fdB:d=%.1f", a.noiseDB, a.minDuration)
	cmd := exec.CommandContext(ctx, a.ffmpegPath,
		"-i", audioPath,
		"-af", filter,
		"-f", "null", "-",
	)
	// silencedetect reports on stderr.
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		a.logger.Error("media.silence.failed", "audio", audioPath, "error", err)
		return nil, fmt.Errorf("ffmpeg silencedetect: %w", err)
	}

	intervals := ParseSilenceDetect(stderr.String())
	a.logger.Info("media.silence.ok", "audio", audioPath, "intervals", len(intervals))
	return intervals, nil
}

var (
	silenceStartRe = regexp.MustCompile(`silence_start:\s*(-?\d+(?:\.\d+)?)`)
	silenceEndRe   = regexp.MustCompile(`silence_end:\s*(-?\d+(?:\.\d+)?)`)
)

// ParseSilenceDetect extracts silence intervals from silencedetect's stderr
// output. A trailing silence_start without a matching end (silence running
// into EOF) is dropped.
func ParseSilenceDetect(out string) []entity.SilenceInterval {
	starts := silenceStartRe.FindAllStringSubmatch(out, -1)
	ends := silenceEndRe.FindAllStringSubmatch(out, -1)

	n := len(starts)
	if len(ends) < n {
		n = len(ends)
	}
	var intervals []entity.SilenceInterval
	for i := 0; i < n; i++ {
		start, err1 := strconv.ParseFloat(starts[i][1], 64)
		end, err2 := strconv.ParseFloat(ends[i][1], 64)
		if err1 != nil || err2 != nil || end < start {
			continue
		}
		if start < 0 {
			start = 0
		}
		intervals = append(intervals, entity.SilenceInterval{
			StartMs: int64(start * 1000),
			EndMs:   int64(end * 1000),
		})
	}
	return intervals
}
