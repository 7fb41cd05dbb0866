// Package all lists sources in detection order.
package all

import (
	"github.com/wader/braillify/internal/source"
	"github.com/wader/braillify/internal/source/document"
	"github.com/wader/braillify/internal/source/still"
	"github.com/wader/braillify/internal/source/video"
)

var Sources = []source.Source{
	document.Source{},
	still.Source{},
	video.Source{},
}
