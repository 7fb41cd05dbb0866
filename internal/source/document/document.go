// Package document opens previously rendered animation documents.
package document

import (
	"context"
	"fmt"
	"os"

	"github.com/wader/braillify/internal/animation"
	"github.com/wader/braillify/internal/source"
)

type Source struct{}

func (Source) Name() string { return "animation" }

func (Source) CanHandle(head []byte) bool { return animation.IsDocument(head) }

// Open parses the document, a tagged file that does not parse is an error
// and not tried as an image or video.
func (Source) Open(ctx context.Context, path string, opts source.Options) (source.Media, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	d, err := animation.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	opts.Log().Debug("animation", "frames", len(d.Frames), "delay_ms", d.Delay)

	return source.Document{Document: d}, nil
}
