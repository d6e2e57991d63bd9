package model

import (
	"path"
	"strings"
)

// MediaType classifies what kind of media a play request refers to
type MediaType string

const (
	MediaTypeTrack        MediaType = "track"
	MediaTypeRadio        MediaType = "radio"
	MediaTypeAnnouncement MediaType = "announcement"
	MediaTypeFlowStream   MediaType = "flow_stream"
)

// PlayerMedia describes the media to be played on a player
type PlayerMedia struct {
	URI       string    `json:"uri"`
	MediaType MediaType `json:"mediaType"`
	Title     string    `json:"title,omitempty"`

	// QueueID/QueueItemID are set for playback-queue driven requests
	QueueID     string `json:"queueId,omitempty"`
	QueueItemID string `json:"queueItemId,omitempty"`

	// Announcement-only fields
	AnnouncementURL string `json:"announcementUrl,omitempty"`
	PreAnnounce     bool   `json:"preAnnounce,omitempty"`
}

// ContentType is an audio container/codec identifier
type ContentType string

const (
	ContentTypePCMF32LE ContentType = "pcm_f32le"
	ContentTypePCMS16LE ContentType = "pcm_s16le"
	ContentTypeAAC      ContentType = "aac"
	ContentTypeMP3      ContentType = "mp3"
	ContentTypeFLAC     ContentType = "flac"
	ContentTypeOGG      ContentType = "ogg"
	ContentTypeWAV      ContentType = "wav"
	ContentTypeUnknown  ContentType = "?"
)

// ContentTypeFromURI guesses the content type from a URI's file extension
func ContentTypeFromURI(uri string) ContentType {
	ext := strings.ToLower(path.Ext(uri))
	if idx := strings.IndexAny(ext, "?#"); idx != -1 {
		ext = ext[:idx]
	}
	switch ext {
	case ".aac", ".adts":
		return ContentTypeAAC
	case ".mp3":
		return ContentTypeMP3
	case ".flac":
		return ContentTypeFLAC
	case ".ogg", ".oga":
		return ContentTypeOGG
	case ".wav":
		return ContentTypeWAV
	default:
		return ContentTypeUnknown
	}
}

// IsPCM reports whether the content type is raw PCM audio
func (c ContentType) IsPCM() bool {
	return c == ContentTypePCMF32LE || c == ContentTypePCMS16LE
}

// AudioFormat describes an audio stream format
type AudioFormat struct {
	ContentType ContentType `json:"contentType"`
	SampleRate  int         `json:"sampleRate,omitempty"`
	BitDepth    int         `json:"bitDepth,omitempty"`
}

// MimeType returns the HTTP content type for the format
func (f AudioFormat) MimeType() string {
	switch f.ContentType {
	case ContentTypeAAC:
		return "audio/aac"
	case ContentTypeMP3:
		return "audio/mpeg"
	case ContentTypeFLAC:
		return "audio/flac"
	case ContentTypeOGG:
		return "audio/ogg"
	case ContentTypeWAV:
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}
