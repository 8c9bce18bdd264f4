package common

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// StatusFor maps an error to its HTTP status.
func StatusFor(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// RespondError writes {message, error?}. Internal errors are logged and expose the cause in "error".
func RespondError(c *gin.Context, err error) {
	status := StatusFor(err)

	message := "internal error"
	var appErr *AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}

	if status == http.StatusInternalServerError {
		RequestLog(c).Errorw("handler_error", "message", message, "error", err)
		c.JSON(status, gin.H{"message": message, "error": err.Error()})
		return
	}
	c.JSON(status, gin.H{"message": message})
}

// BindJSON binds the request body and turns binding failures into validation errors.
func BindJSON(c *gin.Context, dst interface{}) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return BindingError(err)
	}
	return nil
}

func BindingError(err error) *AppError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, describeFieldError(fe))
		}
		return &AppError{Kind: KindValidation, Message: strings.Join(fields, "; "), Err: err}
	}
	return &AppError{Kind: KindValidation, Message: "invalid request body", Err: err}
}

func describeFieldError(fe validator.FieldError) string {
	field := lowerFirst(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// ParamID parses a positive numeric path parameter.
func ParamID(c *gin.Context, name string) (uint, error) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, Invalid("invalid %s %q", name, raw)
	}
	return uint(id), nil
}
