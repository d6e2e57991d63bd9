package transcode

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"

	"github.com/kballard/go-shellquote"

	"github.com/sardaralii/music-assistant/log"
	"github.com/sardaralii/music-assistant/model"
)

// FFmpeg is a Transcoder backed by the ffmpeg command-line tool
type FFmpeg struct {
	path      string
	extraArgs string
	mu        sync.RWMutex
	available *bool
}

// NewFFmpeg creates an ffmpeg-backed transcoder. If path is empty, ffmpeg is
// looked up in $PATH. extraArgs is a shell-quoted string of additional global
// arguments, applied to every invocation.
func NewFFmpeg(path, extraArgs string) *FFmpeg {
	return &FFmpeg{path: path, extraArgs: extraArgs}
}

// IsAvailable checks (and caches) whether the ffmpeg binary can be located
func (f *FFmpeg) IsAvailable() bool {
	f.mu.RLock()
	if f.available != nil {
		result := *f.available
		f.mu.RUnlock()
		return result
	}
	f.mu.RUnlock()

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.available != nil {
		return *f.available
	}
	path, err := f.binaryPath()
	result := err == nil && path != ""
	f.available = &result
	if result {
		log.Info("ffmpeg binary found", "path", path)
	} else {
		log.Warn("ffmpeg binary not found - audio transcoding will be unavailable")
	}
	return result
}

func (f *FFmpeg) binaryPath() (string, error) {
	if f.path != "" {
		if _, err := exec.LookPath(f.path); err != nil {
			return "", fmt.Errorf("configured ffmpeg path not found: %s: %w", f.path, err)
		}
		return f.path, nil
	}
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return "", ErrFFmpegNotFound
	}
	return path, nil
}

func (f *FFmpeg) TranscodeURI(ctx context.Context, uri string, inputFormat, outputFormat model.AudioFormat) (io.ReadCloser, error) {
	args, err := f.buildArgs(uri, inputFormat, outputFormat)
	if err != nil {
		return nil, err
	}
	return f.start(ctx, args, nil)
}

func (f *FFmpeg) TranscodeStream(ctx context.Context, input io.Reader, inputFormat, outputFormat model.AudioFormat) (io.ReadCloser, error) {
	args, err := f.buildArgs("pipe:0", inputFormat, outputFormat)
	if err != nil {
		return nil, err
	}
	return f.start(ctx, args, input)
}

// buildArgs assembles the ffmpeg argument list for one conversion
func (f *FFmpeg) buildArgs(input string, inputFormat, outputFormat model.AudioFormat) ([]string, error) {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if f.extraArgs != "" {
		extra, err := shellquote.Split(f.extraArgs)
		if err != nil {
			return nil, fmt.Errorf("invalid transcoder extra args: %w", err)
		}
		args = append(args, extra...)
	}
	// raw PCM input needs explicit demuxer parameters
	if inputFormat.ContentType.IsPCM() {
		args = append(args,
			"-f", string(inputFormat.ContentType),
			"-ar", strconv.Itoa(inputFormat.SampleRate),
			"-ac", "2",
		)
	}
	args = append(args, "-i", input)
	args = append(args, outputArgs(outputFormat)...)
	args = append(args, "pipe:1")
	return args, nil
}

func outputArgs(format model.AudioFormat) []string {
	switch format.ContentType {
	case model.ContentTypeAAC:
		return []string{"-f", "adts", "-c:a", "aac", "-b:a", "256k"}
	case model.ContentTypeMP3:
		return []string{"-f", "mp3", "-b:a", "320k"}
	case model.ContentTypeFLAC:
		return []string{"-f", "flac"}
	case model.ContentTypePCMF32LE, model.ContentTypePCMS16LE:
		args := []string{"-f", string(format.ContentType)}
		if format.SampleRate > 0 {
			args = append(args, "-ar", strconv.Itoa(format.SampleRate))
		}
		return append(args, "-ac", "2")
	default:
		return []string{"-f", string(format.ContentType)}
	}
}

// start launches ffmpeg and returns its stdout. Closing the returned reader
// kills the process and reaps it.
func (f *FFmpeg) start(ctx context.Context, args []string, stdin io.Reader) (io.ReadCloser, error) {
	if !f.IsAvailable() {
		return nil, ErrFFmpegNotFound
	}
	path, err := f.binaryPath()
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, path, args...)
	if stdin != nil {
		cmd.Stdin = stdin
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTranscodeFailed, err)
	}
	log.Debug(ctx, "Starting ffmpeg", "args", args)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTranscodeFailed, err)
	}

	return &processReader{ReadCloser: stdout, cmd: cmd}, nil
}

type processReader struct {
	io.ReadCloser
	cmd  *exec.Cmd
	once sync.Once
}

func (p *processReader) Close() error {
	var err error
	p.once.Do(func() {
		err = p.ReadCloser.Close()
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Kill()
		}
		_ = p.cmd.Wait()
	})
	return err
}
