// Package rest exposes the JSON API: the auth endpoints, the users resource,
// and the service descriptor routes.
package rest

import (
	"errors"
	"sort"

	"github.com/beyondbound/api/auth"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

// Meta carries optional pagination info on list responses.
type Meta struct {
	Page  *int `json:"page,omitempty"`
	Total *int `json:"total,omitempty"`
}

// Envelope is the uniform success body: {success, data, message, meta}.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	Message string `json:"message"`
	Meta    *Meta  `json:"meta,omitempty"`
}

// ErrorDetail points a validation failure at the offending field.
type ErrorDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type errorBody struct {
	Success bool         `json:"success"`
	Error   errorPayload `json:"error"`
}

type errorPayload struct {
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details"`
}

const (
	textCodeValidation = "VALIDATION_ERROR"
	textCodeInternal   = "INTERNAL_ERROR"
)

func respond(c *fiber.Ctx, status int, data any, message string) error {
	return c.Status(status).JSON(Envelope{
		Success: true,
		Data:    data,
		Message: message,
	})
}

func respondList(c *fiber.Ctx, data any, message string, total int) error {
	return c.Status(fiber.StatusOK).JSON(Envelope{
		Success: true,
		Data:    data,
		Message: message,
		Meta:    &Meta{Total: &total},
	})
}

// NewErrorHandler builds the fiber error handler that renders every failure
// as {success:false, error:{code, message, details}}. Validation failures map
// to 400 with per-field details; rich errors carry their own status and text
// code; anything else is a 500 with an opaque message.
func NewErrorHandler(logger auth.Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = auth.DefaultLogger()
	}

	return func(c *fiber.Ctx, err error) error {
		if verrs, ok := validationErrors(err); ok {
			return c.Status(fiber.StatusBadRequest).JSON(errorBody{
				Error: errorPayload{
					Code:    textCodeValidation,
					Message: "Request validation failed",
					Details: verrs,
				},
			})
		}

		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			status := richErr.Code
			if status == 0 {
				status = statusForCategory(richErr.Category)
			}

			code := richErr.TextCode
			if code == "" {
				code = textCodeInternal
			}

			if status >= fiber.StatusInternalServerError {
				logger.Error("request failed: %s %s", richErr.Message, print.MaybePrettyJSON(richErr.Metadata))
				return c.Status(status).JSON(errorBody{
					Error: errorPayload{
						Code:    textCodeInternal,
						Message: "An unexpected error occurred",
						Details: []ErrorDetail{},
					},
				})
			}

			return c.Status(status).JSON(errorBody{
				Error: errorPayload{
					Code:    code,
					Message: richErr.Message,
					Details: []ErrorDetail{},
				},
			})
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(errorBody{
				Error: errorPayload{
					Code:    textCodeForStatus(fiberErr.Code),
					Message: fiberErr.Message,
					Details: []ErrorDetail{},
				},
			})
		}

		logger.Error("unhandled error: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(errorBody{
			Error: errorPayload{
				Code:    textCodeInternal,
				Message: "An unexpected error occurred",
				Details: []ErrorDetail{},
			},
		})
	}
}

// validationErrors flattens ozzo's error map into sorted field details.
func validationErrors(err error) ([]ErrorDetail, bool) {
	verrs, ok := err.(validation.Errors)
	if !ok {
		return nil, false
	}

	fields := make([]string, 0, len(verrs))
	for field := range verrs {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	details := make([]ErrorDetail, 0, len(verrs))
	for _, field := range fields {
		details = append(details, ErrorDetail{Field: field, Message: verrs[field].Error()})
	}

	return details, true
}

func statusForCategory(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryAuth:
		return fiber.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return fiber.StatusForbidden
	case goerrors.CategoryNotFound:
		return fiber.StatusNotFound
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return fiber.StatusBadRequest
	case goerrors.CategoryConflict:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

func textCodeForStatus(status int) string {
	switch status {
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case fiber.StatusBadRequest:
		return "BAD_REQUEST"
	default:
		return textCodeInternal
	}
}
