package ogc

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// The cadastre and ministry services answer errors with HTTP 200, so
// payloads are judged by content. These thresholds are heuristics.
const (
	MinFeaturePayload = 500
	MinImagePayload   = 1000
)

var (
	ErrExceptionReport = errors.New("ows exception report")
	ErrPayloadTooSmall = errors.New("payload too small")
	ErrNotPDF          = errors.New("payload is not a pdf")
)

var exceptionMarkers = [][]byte{[]byte("ExceptionReport"), []byte("Exception")}

// CheckFeatureResponse rejects stored-query bodies that carry an OWS
// exception or are at most MinFeaturePayload bytes.
func CheckFeatureResponse(body []byte) error {
	for _, m := range exceptionMarkers {
		if bytes.Contains(body, m) {
			return ErrExceptionReport
		}
	}
	if len(body) < MinFeaturePayload {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooSmall, len(body))
	}
	return nil
}

// CheckLayerResponse is the looser check used for environmental layers:
// only a full ExceptionReport is fatal and the body must exceed the threshold.
func CheckLayerResponse(body []byte) error {
	if bytes.Contains(body, exceptionMarkers[0]) {
		return ErrExceptionReport
	}
	if len(body) <= MinFeaturePayload {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooSmall, len(body))
	}
	return nil
}

func CheckImageResponse(body []byte) error {
	if len(body) <= MinImagePayload {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooSmall, len(body))
	}
	return nil
}

// IsPDF reports whether body starts with the PDF magic.
func IsPDF(body []byte) bool {
	return bytes.HasPrefix(body, []byte("%PDF"))
}

// IsPDFContentType matches "application/pdf" with optional parameters.
func IsPDFContentType(ct string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(ct)), "application/pdf")
}
