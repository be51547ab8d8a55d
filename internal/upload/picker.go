package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// ErrPickCancelled means the user closed the picker without choosing a file.
var ErrPickCancelled = errors.New("photo pick cancelled")

// Picker obtains the photo to upload.
type Picker interface {
	Pick(ctx context.Context) (Payload, error)
}

// PickerFunc adapts a function to Picker.
type PickerFunc func(ctx context.Context) (Payload, error)

func (f PickerFunc) Pick(ctx context.Context) (Payload, error) { return f(ctx) }

// FilePicker reads a photo from disk. An empty Path counts as a cancelled pick.
type FilePicker struct {
	Path     string
	MaxBytes int64
}

func (p FilePicker) Pick(ctx context.Context) (Payload, error) {
	if p.Path == "" {
		return Payload{}, ErrPickCancelled
	}
	if err := ctx.Err(); err != nil {
		return Payload{}, err
	}
	f, err := os.Open(p.Path)
	if err != nil {
		return Payload{}, err
	}
	defer f.Close()

	r := io.Reader(f)
	if p.MaxBytes > 0 {
		r = io.LimitReader(f, p.MaxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return Payload{}, err
	}
	if p.MaxBytes > 0 && int64(len(data)) > p.MaxBytes {
		return Payload{}, fmt.Errorf("%s is larger than %d bytes", filepath.Base(p.Path), p.MaxBytes)
	}
	return Payload{
		Data:        data,
		ContentType: http.DetectContentType(data),
		Filename:    filepath.Base(p.Path),
	}, nil
}
