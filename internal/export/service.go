package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/courtfile/media-ingest/internal/repository"
)

// Service is a tiny façade over repositories that produces XLSX bytes for
// transcript exports.
type Service struct {
	mediaRepo   repository.MediaRepository
	transcripts repository.TranscriptRepository
	logger      *slog.Logger
}

func NewService(mediaRepo repository.MediaRepository, transcripts repository.TranscriptRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{mediaRepo: mediaRepo, transcripts: transcripts, logger: logger}
}

// ExportTranscriptXLSX returns an XLSX workbook (as bytes) holding the
// transcript of one media item, one segment per row with speaker and
// timestamps, plus a Silence sheet when silence intervals were detected.
func (s *Service) ExportTranscriptXLSX(ctx context.Context, mediaID string) ([]byte, error) {
	start := time.Now()

	item, err := s.mediaRepo.GetByID(ctx, mediaID)
	if err != nil {
		return nil, fmt.Errorf("load media: %w", err)
	}
	tr, err := s.transcripts.LoadTranscript(ctx, mediaID)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Transcript"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Start",
		"End",
		"Speaker",
		"Text",
		"Confidence",
		"Sentiment",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, seg := range tr.Segments {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, formatMs(seg.StartTimeMs))
		write(2, formatMs(seg.EndTimeMs))
		write(3, seg.Speaker)
		write(4, truncate(seg.Text, 500))
		write(5, fmt.Sprintf("%.2f", seg.Confidence))
		write(6, seg.Sentiment)

		row++
	}

	_ = f.SetColWidth(sheet, "A", "B", 12) // timestamps
	_ = f.SetColWidth(sheet, "C", "C", 10) // speaker
	_ = f.SetColWidth(sheet, "D", "D", 80) // text
	_ = f.SetColWidth(sheet, "E", "F", 12)

	if len(tr.SilenceIntervals) > 0 {
		const silenceSheet = "Silence"
		if _, err := f.NewSheet(silenceSheet); err != nil {
			return nil, err
		}
		_ = f.SetCellValue(silenceSheet, "A1", "Start")
		_ = f.SetCellValue(silenceSheet, "B1", "End")
		for i, iv := range tr.SilenceIntervals {
			cellA, _ := excelize.CoordinatesToCellName(1, i+2)
			cellB, _ := excelize.CoordinatesToCellName(2, i+2)
			_ = f.SetCellValue(silenceSheet, cellA, formatMs(iv.StartMs))
			_ = f.SetCellValue(silenceSheet, cellB, formatMs(iv.EndMs))
		}
		_ = f.SetColWidth(silenceSheet, "A", "B", 12)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"media_id", mediaID,
		"title", item.Title,
		"rows", len(tr.Segments),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// formatMs renders a millisecond offset as H:MM:SS.mmm.
func formatMs(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	d := time.Duration(ms) * time.Millisecond
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	sec := int(d.Seconds()) % 60
	frac := int(ms % 1000)
	return fmt.Sprintf("%d:%02d:%02d.%03d", h, m, sec, frac)
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	cut := s[:n]
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return cut + "…"
}
