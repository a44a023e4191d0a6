// Package ytdlp drives the external media extraction tool. The tool is a
// black box with a known command-line contract: --dump-json for metadata,
// and `-o -` for piping media bytes to stdout.
package ytdlp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/italolelis/mediafetch/internal/logctx"
	"github.com/italolelis/mediafetch/internal/media"
	"github.com/italolelis/mediafetch/internal/platform"
)

// Runner invokes the external tool.
type Runner struct {
	binPath    string
	ffmpegPath string
}

// NewRunner creates a Runner for the given tool binary. ffmpegPath may be
// empty, in which case the tool falls back to whatever ffmpeg it finds.
func NewRunner(binPath, ffmpegPath string) *Runner {
	return &Runner{binPath: binPath, ffmpegPath: ffmpegPath}
}

// BinPath returns the configured tool binary path.
func (r *Runner) BinPath() string {
	return r.binPath
}

// Probe verifies the tool binary is reachable.
func (r *Runner) Probe() error {
	if _, err := exec.LookPath(r.binPath); err != nil {
		return &media.ToolMissingError{Binary: r.binPath, Err: err}
	}

	return nil
}

// FFmpegAvailable reports whether the configured ffmpeg binary resolves.
func (r *Runner) FFmpegAvailable() bool {
	if r.ffmpegPath == "" {
		return false
	}

	_, err := exec.LookPath(r.ffmpegPath)

	return err == nil
}

// FetchMetadata dumps metadata for a single URL without transferring media
// bytes. It uses the same referer and playlist-suppression flags as the real
// download. A non-zero exit propagates as MetadataFetchError; malformed JSON
// propagates as MetadataParseError alongside placeholder metadata so the
// caller can proceed.
func (r *Runner) FetchMetadata(ctx context.Context, url, referer string, plat platform.Platform) (*Metadata, error) {
	logger := logctx.LoggerFromContext(ctx)

	args := []string{"--dump-json", "--no-warnings"}

	if referer != "" {
		args = append(args, "--referer", referer)
	}

	if !plat.AllowsPlaylist() {
		args = append(args, "--no-playlist")
	}

	args = append(args, url)

	cmd := exec.CommandContext(ctx, r.binPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug("fetching metadata", "url", url, "args", strings.Join(args, " "))

	if err := cmd.Run(); err != nil {
		exitCode := -1

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}

		return nil, &media.MetadataFetchError{
			URL:      url,
			ExitCode: exitCode,
			Stderr:   strings.TrimSpace(stderr.String()),
			Err:      err,
		}
	}

	meta, err := ParseMetadata(stdout.Bytes())
	if err != nil {
		return PlaceholderMetadata(), &media.MetadataParseError{URL: url, Err: err}
	}

	return meta, nil
}

// StreamArgs builds the argument list for a streaming download of the given
// record. Format flags come first, then the common stdout-piping flags.
func (r *Runner) StreamArgs(rec media.DownloadRecord) []string {
	var args []string

	if rec.Domain != "" {
		args = append(args, "--referer", rec.Domain)
	}

	switch rec.Format {
	case media.FormatAudioMP3:
		args = append(args, "-x", "--audio-format", "mp3", "--audio-quality", "0")
	case media.FormatAudioM4A:
		args = append(args, "-x", "--audio-format", "m4a", "--audio-quality", "0")
	case media.FormatVideoOnly:
		if rec.Platform == platform.YouTube {
			args = append(args, "-f", "bestvideo[ext=mp4]/bestvideo")
		} else {
			// No video-only stream exists on most hosts; grab the best
			// muxed stream and strip the audio track in the remux.
			args = append(args,
				"-f", "best[ext=mp4]/best",
				"--postprocessor-args", "ffmpeg:-an -c:v copy",
			)
		}
	default:
		args = append(args, "-f", "best[ext=mp4]/best")
	}

	args = append(args, "-o", "-", "--no-warnings", "--no-progress")

	if !rec.Platform.AllowsPlaylist() {
		args = append(args, "--no-playlist")
	}

	if r.FFmpegAvailable() {
		args = append(args, "--ffmpeg-location", r.ffmpegPath)
	}

	return append(args, rec.URL)
}

// Process is a live streaming invocation of the tool. Media bytes arrive on
// Stdout; progress lines arrive on Stderr.
type Process struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr io.ReadCloser
}

// StartStream spawns the tool for a streaming download. The caller owns the
// returned process and must call Wait.
func (r *Runner) StartStream(ctx context.Context, rec media.DownloadRecord) (*Process, error) {
	logger := logctx.LoggerFromContext(ctx)

	args := r.StreamArgs(rec)
	logger.Debug("starting stream", "download_id", rec.ID, "args", strings.Join(args, " "))

	// Deliberately not CommandContext: teardown on client disconnect is an
	// explicit kill so the registry stays consistent.
	cmd := exec.Command(r.binPath, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &media.SpawnError{Binary: r.binPath, Err: err}
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &media.SpawnError{Binary: r.binPath, Err: err}
	}

	if err := cmd.Start(); err != nil {
		return nil, &media.SpawnError{Binary: r.binPath, Err: err}
	}

	return &Process{cmd: cmd, stdout: stdout, stderr: stderr}, nil
}

// Stdout is the media byte stream.
func (p *Process) Stdout() io.Reader {
	return p.stdout
}

// Stderr is the tool's diagnostic stream.
func (p *Process) Stderr() io.Reader {
	return p.stderr
}

// Wait blocks until the process exits and returns its exit error, if any.
func (p *Process) Wait() error {
	return p.cmd.Wait()
}

// Kill force-terminates the process. Safe to call after exit.
func (p *Process) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}

	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill process: %w", err)
	}

	return nil
}
