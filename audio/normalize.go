// Package audio turns a fetched media file into the normalized MP3
// artifact the rest of the pipeline publishes.
package audio

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	metrics "github.com/Shyp/go-simple-metrics"
	"github.com/mlgrupo/convert/runner"
)

// MaxOutputBytes is the artifact size above which a second, more
// aggressive encode pass runs. 1.8 GB, kept below the 2 GB limits of
// the upload targets with some margin.
const MaxOutputBytes = int64(18) * 1024 * 1024 * 1024 / 10

// Filters applied on every pass: trim silence, then normalize
// loudness to the streaming-standard -16 LUFS.
const audioFilters = "silenceremove=1:0:-50dB,loudnorm=I=-16:TP=-1.5:LRA=11"

// A Normalizer shells out to ffmpeg. The zero value is not usable;
// construct with New.
type Normalizer struct {
	FFmpegPath string
	Runner     runner.Runner

	// maxBytes is overridable in tests.
	maxBytes int64
}

func New(ffmpegPath string, r runner.Runner) *Normalizer {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Normalizer{FFmpegPath: ffmpegPath, Runner: r, maxBytes: MaxOutputBytes}
}

// Normalize converts inputPath to a silence-trimmed, loudness-
// normalized MP3 at outputPath and returns the path of the final
// artifact. If the first pass produces a file larger than
// MaxOutputBytes, the output is re-encoded at a lower bitrate; when
// that fallback pass fails the oversized first-pass file is returned
// instead of an error.
func (n *Normalizer) Normalize(ctx context.Context, inputPath, outputPath string) (string, error) {
	start := time.Now()
	if err := n.encode(ctx, inputPath, outputPath, "192k"); err != nil {
		return "", err
	}
	go metrics.Time("audio.normalize.latency", time.Since(start))

	info, err := os.Stat(outputPath)
	if err != nil {
		return "", fmt.Errorf("audio: ffmpeg completed but output is missing: %w", err)
	}
	if info.Size() <= n.maxBytes {
		return outputPath, nil
	}

	log.Printf("audio: output %s is %d bytes, re-encoding at lower bitrate", outputPath, info.Size())
	go metrics.Increment("audio.normalize.second_pass")
	compressed := outputPath + ".reencode.mp3"
	if err := n.encode(ctx, outputPath, compressed, "128k"); err != nil {
		log.Printf("audio: fallback encode failed, keeping first pass: %s", err)
		os.Remove(compressed)
		return outputPath, nil
	}
	if err := os.Remove(outputPath); err != nil {
		return "", err
	}
	if err := os.Rename(compressed, outputPath); err != nil {
		return "", err
	}
	return outputPath, nil
}

func (n *Normalizer) encode(ctx context.Context, in, out, bitrate string) error {
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", in,
		"-vn",
		"-ac", "2",
		"-ar", "44100",
		"-c:a", "libmp3lame",
		"-b:a", bitrate,
		"-af", audioFilters,
		"-f", "mp3",
		out,
	}
	result, err := n.Runner.Run(ctx, n.FFmpegPath, args...)
	if err != nil {
		return fmt.Errorf("audio: ffmpeg exited %d: %s: %w", result.ExitCode, tail(result.Stderr), err)
	}
	return nil
}

// tail returns the last few hundred bytes of ffmpeg's stderr, which is
// where it puts the actual failure reason.
func tail(s string) string {
	const max = 400
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max:]
}
