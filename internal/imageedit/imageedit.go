// Package imageedit applies natural-language edits to vineyard photos
// exchanged as base64 data URLs.
package imageedit

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/drpaneas/vitisexpert/internal/llm"
)

// MaxImageBytes limits the decoded size of an uploaded photo.
const MaxImageBytes = 10 << 20

const defaultMIMEType = "image/png"

var (
	// ErrInvalidDataURL is returned when the input is not a base64 image data URL.
	ErrInvalidDataURL = errors.New("ungültige Bild-Daten-URL")
	// ErrNoImage is returned when the model answered without an image.
	ErrNoImage = errors.New("Bild konnte nicht bearbeitet werden.")
	// ErrTooLarge is returned for photos above MaxImageBytes.
	ErrTooLarge = errors.New("Bild ist zu groß")
	// ErrEmptyPrompt is returned when no edit instruction was given.
	ErrEmptyPrompt = errors.New("keine Bearbeitungsanweisung angegeben")
)

// Suggestions are example instructions offered next to the prompt field.
var Suggestions = []string{
	"Füge einen Retro-Filter hinzu",
	"Entferne störende Personen im Hintergrund",
	"Mache die Farben im Laub satter",
	"Optimiere die Schärfe der Trauben",
	"Verwandle das Foto in eine Bleistiftzeichnung",
}

var dataURLPattern = regexp.MustCompile(`^data:(image/\w+);base64,(.+)$`)

// ParseDataURL splits a data URL into its MIME type and decoded bytes.
func ParseDataURL(s string) (string, []byte, error) {
	m := dataURLPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return "", nil, ErrInvalidDataURL
	}
	if base64.StdEncoding.DecodedLen(len(m[2])) > MaxImageBytes+3 {
		return "", nil, ErrTooLarge
	}
	data, err := base64.StdEncoding.DecodeString(m[2])
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrInvalidDataURL, err)
	}
	if len(data) > MaxImageBytes {
		return "", nil, ErrTooLarge
	}
	return m[1], data, nil
}

// EncodeDataURL builds a data URL, defaulting the MIME type to image/png.
func EncodeDataURL(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = defaultMIMEType
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// Editor turns data URL requests into image model calls.
type Editor struct {
	backend llm.ImageEditor
}

// New returns an Editor backed by the given image model.
func New(backend llm.ImageEditor) *Editor {
	return &Editor{backend: backend}
}

// Edit applies instruction to the photo in dataURL and returns the edited
// photo as a data URL.
func (e *Editor) Edit(ctx context.Context, dataURL, instruction string) (string, error) {
	img, err := e.EditImage(ctx, dataURL, instruction)
	if err != nil {
		return "", err
	}
	return EncodeDataURL(img.MIMEType, img.Data), nil
}

// EditImage is Edit without the final data URL encoding.
func (e *Editor) EditImage(ctx context.Context, dataURL, instruction string) (*llm.Image, error) {
	if strings.TrimSpace(instruction) == "" {
		return nil, ErrEmptyPrompt
	}
	mimeType, data, err := ParseDataURL(dataURL)
	if err != nil {
		return nil, err
	}
	return e.EditBytes(ctx, llm.Image{MIMEType: mimeType, Data: data}, instruction)
}

// EditBytes edits an already decoded image.
func (e *Editor) EditBytes(ctx context.Context, img llm.Image, instruction string) (*llm.Image, error) {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return nil, ErrEmptyPrompt
	}
	if len(img.Data) > MaxImageBytes {
		return nil, ErrTooLarge
	}
	slog.Info("editing image", "mime", img.MIMEType, "bytes", len(img.Data))

	out, err := e.backend.EditImage(ctx, img, instruction)
	if err != nil {
		return nil, fmt.Errorf("editing image: %w", err)
	}
	if out == nil || len(out.Data) == 0 {
		slog.Warn("image model returned no image")
		return nil, ErrNoImage
	}
	if out.MIMEType == "" {
		out.MIMEType = defaultMIMEType
	}
	slog.Debug("image edited", "mime", out.MIMEType, "bytes", len(out.Data))
	return out, nil
}
