package utils

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// GenerateAttachmentID creates a short unique ID for an attachment
// reference.
func GenerateAttachmentID() string {
	alphabet := "abcdefghijklmnopqrstuvwxyz0123456789"
	id, err := gonanoid.Generate(alphabet, 12)
	if err != nil {
		panic(err)
	}
	return "att_" + id
}
