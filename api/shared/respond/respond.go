// Package respond writes JSON bodies and maps application errors onto HTTP
// status codes for the API handlers.
package respond

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	appcontext "railstock/api/shared/context"
	"railstock/infrastructure/apperror"
)

// DeviceHeader carries the scanning device id when the body does not.
const DeviceHeader = "X-Device-ID"

const maxBodyBytes = 1 << 20

var validate = newValidator()

// newValidator reports fields by their json names so 400 bodies use the
// same keys clients send.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

type errorBody struct {
	Error   string            `json:"error"`
	RollID  string            `json:"rollId,omitempty"`
	Warning bool              `json:"warning,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Warning writes a 409 carrying warning=true, used when the requested state
// already holds and nothing was changed.
func Warning(w http.ResponseWriter, message string) {
	JSON(w, http.StatusConflict, errorBody{Error: message, Warning: true})
}

// Error writes err with the status of its kind. Internal errors are logged
// and reported without detail.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperror.As(err)
	body := errorBody{Error: appErr.Message, RollID: appErr.RollID, Fields: appErr.Fields}
	status := http.StatusInternalServerError
	switch appErr.Kind {
	case apperror.KindValidation:
		status = http.StatusBadRequest
	case apperror.KindNotFound:
		status = http.StatusNotFound
	case apperror.KindConflict:
		status = http.StatusConflict
	default:
		appcontext.LoggerFromContext(r.Context()).Errorw("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"err", err,
		)
		body = errorBody{Error: "internal server error"}
	}
	JSON(w, status, body)
}

// Decode reads a JSON body into dst and runs its validate tags. Failures are
// returned as validation errors.
func Decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperror.Validation("request body is required")
		}
		return apperror.Validation("invalid JSON body")
	}
	return Validate(dst)
}

// Validate runs the validate tags of v and reports failures per JSON field.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperror.Validation("invalid request")
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	appErr := apperror.ValidationFields(fields)
	appErr.Message = "missing or invalid fields"
	return appErr
}

// DeviceID prefers the body value and falls back to the request header.
func DeviceID(r *http.Request, fromBody string) *string {
	id := strings.TrimSpace(fromBody)
	if id == "" {
		id = strings.TrimSpace(r.Header.Get(DeviceHeader))
	}
	if id == "" {
		return nil
	}
	return &id
}
