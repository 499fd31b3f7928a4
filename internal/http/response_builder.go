// Package http provides the JSON API served to the dashboard front end.
//
// This file implements the builder used by every handler to write the
// {success, data, error} envelope.
package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	body       envelope
}

// NewJSONResponse creates a successful 200 response carrying data.
func NewJSONResponse(data any) *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
		body:       envelope{Success: true, Data: data},
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Data replaces the payload.
func (b *JSONResponseBuilder) Data(data any) *JSONResponseBuilder {
	b.body.Data = data
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	if err := json.NewEncoder(w).Encode(b.body); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

// ErrorResponse creates a failed response with the given status and message.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: statusCode,
		headers:    make(map[string]string),
		body:       envelope{Success: false, Error: message},
	}
}

func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

func InternalServerError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

// TooManyRequestsError asks the client to retry after the given seconds.
func TooManyRequestsError(retryAfter string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, please try again later").
		Header("Retry-After", retryAfter)
}
