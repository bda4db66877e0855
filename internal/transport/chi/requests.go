package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	// MaxDocumentBytes bounds a submitted document or fragment.
	MaxDocumentBytes = 2 << 20
	// MaxInputBytes bounds one composer input.
	MaxInputBytes = 64 << 10
)

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return name
	})
	return v
}

// createDocumentRequest is the body of POST /v1/documents.
type createDocumentRequest struct {
	HTML   string `json:"html" validate:"required,max=2097152"`
	Domain string `json:"domain" validate:"omitempty,max=253"`
}

// appendFragmentRequest is the body of POST /v1/documents/{id}/fragments.
type appendFragmentRequest struct {
	ParentID string `json:"parent_id" validate:"omitempty,max=128"`
	HTML     string `json:"html" validate:"required,max=2097152"`
}

// inputRequest is the body of POST .../surfaces/{surfaceID}/input. Empty text is valid.
type inputRequest struct {
	Text string `json:"text" validate:"max=65536"`
}

// decodeRequest reads a JSON body into v and validates its tags.
func decodeRequest(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, MaxDocumentBytes+1024)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "request body is empty")
			return false
		}
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	if err := validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, validationMessage(err))
		return false
	}
	return true
}

// validationMessage flattens validator errors into one line.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", field, fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
