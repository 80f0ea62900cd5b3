package capture

import (
	"bufio"
	"bytes"
	"net/http"
)

// HTTPRequest is the head of a cleartext HTTP request.
type HTTPRequest struct {
	// Method is the request method.
	Method string

	// Host is the Host header.
	Host string

	// Path is the request URI.
	Path string

	// UserAgent is the User-Agent header.
	UserAgent string
}

var httpMethods = [][]byte{
	[]byte("GET "), []byte("POST "), []byte("PUT "), []byte("HEAD "),
	[]byte("DELETE "), []byte("OPTIONS "), []byte("PATCH "),
}

// decodeHTTP returns the request head when the segment begins
// with a complete HTTP/1.x request head.
func decodeHTTP(payload []byte) *HTTPRequest {
	matched := false
	for _, m := range httpMethods {
		if bytes.HasPrefix(payload, m) {
			matched = true
			break
		}
	}
	if !matched {
		return nil
	}
	req, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(payload)))
	if err != nil {
		return nil
	}
	return &HTTPRequest{
		Method:    req.Method,
		Host:      req.Host,
		Path:      req.RequestURI,
		UserAgent: req.UserAgent(),
	}
}
