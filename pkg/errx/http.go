package errx

import (
	"github.com/gofiber/fiber/v2"
)

// HTTPErrorResponse represents a standard HTTP error response
type HTTPErrorResponse struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Type    string                 `json:"type"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ToHTTPResponse converts an Error to an HTTPErrorResponse
func (e *Error) ToHTTPResponse() HTTPErrorResponse {
	return HTTPErrorResponse{
		Code:    e.Code,
		Message: e.Message,
		Type:    string(e.Type),
		Details: e.Details,
	}
}

// WriteFiber writes the error as a fiber JSON response with its HTTP status
func (e *Error) WriteFiber(c *fiber.Ctx) error {
	return c.Status(e.HTTPStatus).JSON(e.ToHTTPResponse())
}

// HandleFiberError maps any error to a fiber response. Unknown errors
// become 500s; *Error values keep their registered status and code.
func HandleFiberError(c *fiber.Ctx, err error) error {
	var customErr *Error
	if As(err, &customErr) {
		return customErr.WriteFiber(c)
	}

	return New(err.Error(), TypeInternal).WriteFiber(c)
}
