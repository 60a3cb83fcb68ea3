// Package audiometa reads title and duration from uploaded audio files.
package audiometa

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dhowden/tag"
	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
	"github.com/sirupsen/logrus"
	"github.com/tcolgate/mp3"
)

// Info is what a file tells us about a track.
type Info struct {
	Title         string
	LengthSeconds float64
}

// Extractor handles metadata extraction from audio files
type Extractor struct {
	supportedFormats []string
	logger           *logrus.Logger
}

// NewExtractor creates a new metadata extractor
func NewExtractor(supportedFormats []string, logger *logrus.Logger) *Extractor {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Extractor{
		supportedFormats: supportedFormats,
		logger:           logger,
	}
}

// Extract reads tags and duration from filePath. A file without usable tags
// is titled after its file name; a duration that cannot be computed is 0.
func (e *Extractor) Extract(filePath string) (Info, error) {
	startTime := time.Now()

	file, err := os.Open(filePath)
	if err != nil {
		return Info{}, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer file.Close()

	duration, err := e.calculateDuration(filePath)
	if err != nil {
		e.logger.WithError(err).WithField("file_path", filePath).Warn("Failed to calculate duration, setting to 0")
		duration = 0
	}

	info := Info{
		Title:         TitleFromFilename(filePath),
		LengthSeconds: duration,
	}

	metadata, err := tag.ReadFrom(file)
	if err != nil {
		e.logger.WithError(err).WithField("file_path", filePath).Debug("No readable tags, using filename")
		return info, nil
	}

	if title := strings.TrimSpace(metadata.Title()); title != "" {
		info.Title = title
	}

	e.logger.WithFields(logrus.Fields{
		"file_path":       filePath,
		"title":           info.Title,
		"artist":          metadata.Artist(),
		"duration":        info.LengthSeconds,
		"processing_time": time.Since(startTime),
	}).Debug("Extracted audio metadata")

	return info, nil
}

// TitleFromFilename strips directory and extension from path. Names that
// are only an extension, such as ".mp3", are returned whole so the title
// is never empty.
func TitleFromFilename(path string) string {
	name := filepath.Base(path)
	if stem := strings.TrimSpace(strings.TrimSuffix(name, filepath.Ext(name))); stem != "" {
		return stem
	}
	return name
}

// calculateDuration calculates the duration of an audio file in seconds
func (e *Extractor) calculateDuration(filePath string) (float64, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".mp3":
		return e.durationMP3(filePath)
	case ".flac":
		return e.durationFLAC(filePath)
	case ".wav":
		return e.durationWAV(filePath)
	case ".m4a":
		return e.durationM4A(filePath)
	default:
		return 0, fmt.Errorf("unsupported format: %s", ext)
	}
}

// durationMP3 sums decoded frame durations, falling back to a bitrate
// estimate only when no frame decodes at all.
func (e *Extractor) durationMP3(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	dec := mp3.NewDecoder(f)
	var total time.Duration
	var skipped int
	frames := 0
	for {
		var fr mp3.Frame
		if err := dec.Decode(&fr, &skipped); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if frames == 0 {
				return estimateFromFileSize(f, 192000)
			}
			break
		}
		total += fr.Duration()
		frames++
	}
	return total.Seconds(), nil
}

// durationFLAC reads the STREAMINFO block.
func (e *Extractor) durationFLAC(path string) (float64, error) {
	stream, err := flac.ParseFile(path)
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	si := stream.Info
	if si.NSamples > 0 && si.SampleRate > 0 {
		return float64(si.NSamples) / float64(si.SampleRate), nil
	}
	return 0, fmt.Errorf("flac stream missing sample info")
}

// durationWAV uses the header's format and the PCM byte count.
func (e *Extractor) durationWAV(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return 0, fmt.Errorf("invalid wav file")
	}
	if dec.SampleRate == 0 || dec.BitDepth == 0 || dec.NumChans == 0 {
		return 0, fmt.Errorf("invalid wav header")
	}

	st, err := f.Stat()
	if err != nil {
		return 0, err
	}
	pcmBytes := st.Size() - 44
	if pcmBytes < 0 {
		pcmBytes = 0
	}
	frameSize := int64(dec.BitDepth/8) * int64(dec.NumChans)
	if frameSize <= 0 {
		return 0, fmt.Errorf("invalid sample frame size")
	}
	return float64(pcmBytes/frameSize) / float64(dec.SampleRate), nil
}

// durationM4A scans top-level atoms for moov/mvhd and reads its timescale
// and duration.
func (e *Extractor) durationM4A(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	head := make([]byte, 8)
	for {
		if _, err := io.ReadFull(f, head); err != nil {
			return 0, err
		}
		size := int64(binary.BigEndian.Uint32(head[0:4]))
		if size < 8 {
			return 0, fmt.Errorf("invalid atom size")
		}
		if string(head[4:8]) == "moov" {
			return readMVHD(f, size-8)
		}
		if _, err := f.Seek(size-8, io.SeekCurrent); err != nil {
			return 0, err
		}
	}
}

func readMVHD(r io.ReadSeeker, limit int64) (float64, error) {
	head := make([]byte, 8)
	for read := int64(0); read < limit; {
		if _, err := io.ReadFull(r, head); err != nil {
			return 0, err
		}
		size := int64(binary.BigEndian.Uint32(head[0:4]))
		if size < 8 {
			return 0, fmt.Errorf("invalid sub-atom size")
		}
		if string(head[4:8]) != "mvhd" {
			if _, err := r.Seek(size-8, io.SeekCurrent); err != nil {
				return 0, err
			}
			read += size
			continue
		}

		version := make([]byte, 4)
		if _, err := io.ReadFull(r, version); err != nil {
			return 0, err
		}
		// creation and modification times
		skip := int64(8)
		if version[0] == 1 {
			skip = 16
		}
		if _, err := r.Seek(skip, io.SeekCurrent); err != nil {
			return 0, err
		}

		buf := make([]byte, 4)
		if _, err := io.ReadFull(r, buf); err != nil {
			return 0, err
		}
		timescale := binary.BigEndian.Uint32(buf)
		if timescale == 0 {
			return 0, fmt.Errorf("invalid timescale")
		}

		var units uint64
		if version[0] == 1 {
			buf = make([]byte, 8)
			if _, err := io.ReadFull(r, buf); err != nil {
				return 0, err
			}
			units = binary.BigEndian.Uint64(buf)
		} else {
			if _, err := io.ReadFull(r, buf); err != nil {
				return 0, err
			}
			units = uint64(binary.BigEndian.Uint32(buf))
		}
		return float64(units) / float64(timescale), nil
	}
	return 0, fmt.Errorf("mvhd atom not found")
}

// estimateFromFileSize provides last-resort estimation if parsing fails.
func estimateFromFileSize(f *os.File, bitrate int) (float64, error) {
	st, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if bitrate <= 0 {
		return 0, fmt.Errorf("invalid bitrate")
	}
	return float64(st.Size()*8) / float64(bitrate), nil
}

// IsAudioFile checks if a file is a supported audio format
func (e *Extractor) IsAudioFile(filePath string) bool {
	ext := strings.ToLower(filepath.Ext(filePath))
	for _, format := range e.supportedFormats {
		if ext == format {
			return true
		}
	}
	return false
}

// GetContentType returns the MIME type for an audio file
func (e *Extractor) GetContentType(filePath string) string {
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".mp3":
		return "audio/mpeg"
	case ".flac":
		return "audio/flac"
	case ".wav":
		return "audio/wav"
	case ".m4a":
		return "audio/mp4"
	default:
		return "application/octet-stream"
	}
}
