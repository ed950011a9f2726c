// Package apierror provides OGC service exceptions and their HTTP responses.
//
// Errors are written as a ServiceExceptionReport so that WMS clients can
// display them the same way they display exceptions from other map servers.
package apierror

import (
	"encoding/xml"
	"log/slog"
	"net/http"
)

// Exception codes. The first group is defined by the WMS standard; the
// rest cover conditions of this service that the standard doesn't name.
const (
	CodeInvalidFormat         = "InvalidFormat"
	CodeInvalidCRS            = "InvalidCRS"
	CodeLayerNotDefined       = "LayerNotDefined"
	CodeStyleNotDefined       = "StyleNotDefined"
	CodeMissingParameter      = "MissingParameterValue"
	CodeInvalidParameter      = "InvalidParameterValue"
	CodeInvalidDimensionValue = "InvalidDimensionValue"
	CodeOperationNotSupported = "OperationNotSupported"
	CodeNoApplicableCode      = "NoApplicableCode"

	CodeUnauthorized = "Unauthorized"
	CodeRateLimited  = "RateLimited"
	CodeUnavailable  = "ServiceUnavailable"
)

// ContentType is the MIME type of a ServiceExceptionReport.
const ContentType = "application/vnd.ogc.se_xml"

// Error is a service exception with the HTTP status it maps to.
type Error struct {
	Status  int
	Code    string
	Locator string
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

type exception struct {
	Code    string `xml:"code,attr,omitempty"`
	Locator string `xml:"locator,attr,omitempty"`
	Message string `xml:",chardata"`
}

type report struct {
	XMLName    xml.Name    `xml:"ServiceExceptionReport"`
	Version    string      `xml:"version,attr"`
	Xmlns      string      `xml:"xmlns,attr"`
	Exceptions []exception `xml:"ServiceException"`
}

// Write sends an Error as a ServiceExceptionReport.
func Write(w http.ResponseWriter, err *Error) {
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(err.Status)

	body := report{
		Version:    "1.3.0",
		Xmlns:      "http://www.opengis.net/ogc",
		Exceptions: []exception{{Code: err.Code, Locator: err.Locator, Message: err.Message}},
	}
	_, _ = w.Write([]byte(xml.Header))
	if encErr := xml.NewEncoder(w).Encode(body); encErr != nil {
		slog.Error("failed to encode service exception", "err", encErr)
	}
}

// MissingParameter returns a 400 error for a required parameter that is absent.
func MissingParameter(param string) *Error {
	return &Error{
		Status:  http.StatusBadRequest,
		Code:    CodeMissingParameter,
		Locator: param,
		Message: "Missing required parameter " + param + ".",
	}
}

// InvalidParameter returns a 400 error for a specific invalid parameter.
func InvalidParameter(param, msg string) *Error {
	return &Error{
		Status:  http.StatusBadRequest,
		Code:    CodeInvalidParameter,
		Locator: param,
		Message: msg,
	}
}

// InvalidFormat returns a 400 error for an output format without an encoder.
func InvalidFormat(format string) *Error {
	return &Error{
		Status:  http.StatusBadRequest,
		Code:    CodeInvalidFormat,
		Locator: "format",
		Message: "Unsupported output format " + format + ".",
	}
}

// LayerNotDefined returns a 400 error for an unknown layer.
func LayerNotDefined(layer string) *Error {
	return &Error{
		Status:  http.StatusBadRequest,
		Code:    CodeLayerNotDefined,
		Locator: "layers",
		Message: "Layer " + layer + " is not defined.",
	}
}

// InvalidDimension returns a 400 error for a size or dimension out of range.
func InvalidDimension(param, msg string) *Error {
	return &Error{
		Status:  http.StatusBadRequest,
		Code:    CodeInvalidDimensionValue,
		Locator: param,
		Message: msg,
	}
}

// OperationNotSupported returns a 400 error for an unknown REQUEST value.
func OperationNotSupported(op string) *Error {
	return &Error{
		Status:  http.StatusBadRequest,
		Code:    CodeOperationNotSupported,
		Locator: "request",
		Message: "Operation " + op + " is not supported.",
	}
}

// Unauthorized returns a 401 error for a rejected API key.
func Unauthorized(msg string) *Error {
	return &Error{
		Status:  http.StatusUnauthorized,
		Code:    CodeUnauthorized,
		Message: msg,
	}
}

// RateLimited returns a 429 error when rate limits are exceeded.
func RateLimited() *Error {
	return &Error{
		Status:  http.StatusTooManyRequests,
		Code:    CodeRateLimited,
		Message: "Rate limit exceeded. Please retry after a brief wait.",
	}
}

// Unavailable returns a 503 error when a layer source can't serve requests.
func Unavailable(source string) *Error {
	return &Error{
		Status:  http.StatusServiceUnavailable,
		Code:    CodeUnavailable,
		Message: "Layer source " + source + " is currently unavailable.",
	}
}

// Internal returns a 500 error for unexpected server failures.
func Internal(msg string) *Error {
	return &Error{
		Status:  http.StatusInternalServerError,
		Code:    CodeNoApplicableCode,
		Message: msg,
	}
}
