// Package share exposes the device-level share capability: copy to the
// system clipboard, degrading to handing the text back when no clipboard is
// available.
package share

import (
	"strings"

	"github.com/atotto/clipboard"
)

// Result describes how a share request was fulfilled.
type Result struct {
	// Copied is true when the payload reached the system clipboard.
	Copied bool

	// Text is the share payload, returned so the caller can present it
	// itself when copying was not possible.
	Text string
}

// Share copies text (and an optional link) to the system clipboard. When the
// platform has no clipboard this is not an error: the caller gets the
// payload back and presents it instead.
func Share(text, link string) (Result, error) {
	payload := text
	if link != "" {
		payload = strings.TrimSpace(text + "\n" + link)
	}

	if clipboard.Unsupported {
		return Result{Copied: false, Text: payload}, nil
	}
	if err := clipboard.WriteAll(payload); err != nil {
		return Result{Copied: false, Text: payload}, err
	}
	return Result{Copied: true, Text: payload}, nil
}
