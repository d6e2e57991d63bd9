package transcode

import (
	"context"
	"errors"
	"io"

	"github.com/sardaralii/music-assistant/model"
)

var (
	// ErrFFmpegNotFound is returned when the ffmpeg binary can not be located
	ErrFFmpegNotFound = errors.New("ffmpeg binary not found")
	// ErrTranscodeFailed is returned when the transcode process can not be started
	ErrTranscodeFailed = errors.New("transcode failed")
)

// Transcoder converts audio from one format to another, producing a byte
// stream that ends naturally when the source is exhausted. Closing the
// returned reader releases the underlying process/resources.
type Transcoder interface {
	// TranscodeURI reads audio from a URI (file path, http url, ...) playable
	// by the backend and converts it to the output format.
	TranscodeURI(ctx context.Context, uri string, inputFormat, outputFormat model.AudioFormat) (io.ReadCloser, error)
	// TranscodeStream converts audio read from input to the output format.
	TranscodeStream(ctx context.Context, input io.Reader, inputFormat, outputFormat model.AudioFormat) (io.ReadCloser, error)
}
