package id

import (
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/sardaralii/music-assistant/log"
)

const lowercaseAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewShort returns a short lowercase random id, suitable for namespaced
// identifiers such as group player ids.
func NewShort() string {
	id, err := gonanoid.Generate(lowercaseAlphabet, 8)
	if err != nil {
		log.Error("Could not generate new short ID", err)
	}
	return id
}
