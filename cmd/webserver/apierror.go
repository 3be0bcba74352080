package main

import (
	"errors"
	"fmt"
	"net/http"

	"pdfquiz"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// APIError is the body of every non-2xx response.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Stage   string `json:"stage,omitempty"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type errorEnvelope struct {
	Error *APIError `json:"error"`
}

func newBadRequestError(message string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "InvalidRequest",
		Stage:   string(pdfquiz.StageRequest),
		Message: message,
	}
}

func newNotFoundError(resource, id string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "NotFound",
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

func newServiceUnavailableError(message string) *APIError {
	return &APIError{
		Status:  http.StatusServiceUnavailable,
		Code:    "ServiceUnavailable",
		Message: message,
	}
}

// pipelineStatus maps pipeline error kinds to HTTP status codes.
var pipelineStatus = []struct {
	kind    error
	status  int
	message string
}{
	{pdfquiz.ErrInvalidRequest, http.StatusBadRequest, "The request is invalid."},
	{pdfquiz.ErrInsufficientText, http.StatusUnprocessableEntity, "PDF appears to be scanned/image-based. Please upload a PDF with selectable text."},
	{pdfquiz.ErrExtractionFailed, http.StatusUnprocessableEntity, "The file could not be read as a PDF."},
	{pdfquiz.ErrUpstreamAuth, http.StatusBadGateway, "The question generator rejected our credentials."},
	{pdfquiz.ErrUpstreamUnavailable, http.StatusGatewayTimeout, "The question generator did not respond in time."},
	{pdfquiz.ErrUpstream, http.StatusBadGateway, "The question generator returned an error."},
	{pdfquiz.ErrMalformedUpstreamResponse, http.StatusBadGateway, "The question generator returned an unreadable response."},
	{pdfquiz.ErrNoValidMcqs, http.StatusBadGateway, "No usable questions could be generated from this PDF."},
}

func fromPipelineError(pe *pdfquiz.Error) *APIError {
	apiErr := &APIError{
		Status:  http.StatusInternalServerError,
		Code:    pe.Code(),
		Stage:   string(pe.Stage),
		Message: "Quiz generation failed.",
		Details: pe.Detail,
	}
	for _, m := range pipelineStatus {
		if errors.Is(pe, m.kind) {
			apiErr.Status = m.status
			apiErr.Message = m.message
			break
		}
	}
	return apiErr
}

// errorHandler renders every error as an errorEnvelope.
func errorHandler(logger *logrus.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var apiErr *APIError
		var httpErr *echo.HTTPError
		pe, fromPipeline := pdfquiz.AsError(err)
		switch {
		case fromPipeline:
			apiErr = fromPipelineError(pe)
		case errors.As(err, &apiErr):
		case errors.As(err, &httpErr):
			apiErr = &APIError{
				Status:  httpErr.Code,
				Code:    http.StatusText(httpErr.Code),
				Message: fmt.Sprintf("%v", httpErr.Message),
			}
		default:
			apiErr = &APIError{
				Status:  http.StatusInternalServerError,
				Code:    "InternalError",
				Message: "An unexpected error occurred",
			}
		}

		entry := logger.WithFields(logrus.Fields{
			"method": c.Request().Method,
			"path":   c.Path(),
			"status": apiErr.Status,
			"code":   apiErr.Code,
		})
		if apiErr.Status >= http.StatusInternalServerError {
			entry.WithError(err).Error("Request failed")
		} else {
			entry.WithError(err).Info("Request rejected")
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(apiErr.Status)
		} else {
			err = c.JSON(apiErr.Status, errorEnvelope{Error: apiErr})
		}
		if err != nil {
			logger.WithError(err).Warn("Failed to write error response")
		}
	}
}
