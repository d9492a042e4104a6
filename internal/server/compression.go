package server

import (
	"net/http"

	"github.com/klauspost/compress/gzhttp"
)

// compressMinSize keeps short JSON bodies uncompressed.
const compressMinSize = 1024

var compressedContentTypes = []string{"application/json"}

// newJSONCompressor returns middleware that gzips JSON responses for clients
// sending Accept-Encoding: gzip. File downloads are never wrapped.
func newJSONCompressor() (func(http.Handler) http.HandlerFunc, error) {
	return gzhttp.NewWrapper(
		gzhttp.MinSize(compressMinSize),
		gzhttp.ContentTypes(compressedContentTypes),
	)
}
