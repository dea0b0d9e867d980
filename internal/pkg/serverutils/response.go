package serverutils

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

type Response struct {
	Success bool        `json:"success"`
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Errors  interface{} `json:"errors,omitempty"`
}

func SuccessResponse(message string, data interface{}) Response {
	return Response{
		Success: true,
		Code:    fiber.StatusOK,
		Message: message,
		Data:    data,
	}
}

func ErrorResponse(code int, message string) Response {
	return Response{
		Success: false,
		Code:    code,
		Message: message,
	}
}

func ValidationErrorResponse(fields []FieldError) Response {
	return Response{
		Success: false,
		Code:    fiber.StatusBadRequest,
		Message: "Validation failed",
		Errors:  fields,
	}
}

var validate = validator.New()

type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// RequestValidationError carries per-field failures so the error handler can
// render a 400 with details instead of a generic 500.
type RequestValidationError struct {
	Fields []FieldError
}

func (e *RequestValidationError) Error() string {
	return fmt.Sprintf("validation failed on %d field(s)", len(e.Fields))
}

func ValidateRequest(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{Field: fe.Field(), Rule: fe.Tag()})
	}
	return &RequestValidationError{Fields: fields}
}

// ErrorHandlerMiddleware turns returned errors into enveloped JSON responses.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		var ve *RequestValidationError
		if errors.As(err, &ve) {
			return ctx.Status(fiber.StatusBadRequest).JSON(ValidationErrorResponse(ve.Fields))
		}

		var fe *fiber.Error
		if errors.As(err, &fe) {
			return ctx.Status(fe.Code).JSON(ErrorResponse(fe.Code, fe.Message))
		}

		return ctx.Status(fiber.StatusInternalServerError).JSON(ErrorResponse(fiber.StatusInternalServerError, err.Error()))
	}
}
