package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/garnizeh/qna/pkg/models"
)

// maxBodySize caps every JSON request body.
const maxBodySize = 64 * 1024

var validate = validator.New(validator.WithRequiredStructEnabled())

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("encode response", slog.Any("err", err))
	}
}

func writeErrorStatus(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, errorResponse{Error: msg}, status)
}

// writeError maps domain errors onto HTTP statuses. Anything unknown is a 500
// and its text is not sent to the client.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		writeErrorStatus(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrUnauthenticated):
		writeErrorStatus(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, models.ErrForbidden):
		writeErrorStatus(w, http.StatusForbidden, err.Error())
	case errors.Is(err, models.ErrInvalidArgument):
		writeErrorStatus(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrDraftExists):
		writeErrorStatus(w, http.StatusConflict, err.Error())
	default:
		logger.Error("request failed", slog.Any("err", err))
		writeErrorStatus(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeBody reads a size-limited JSON body into v and runs the struct
// validation tags. Failures wrap models.ErrInvalidArgument.
func decodeBody(r *http.Request, v any) error {
	body, err := readBody(r)
	if err != nil {
		return err
	}
	return decodeBytes(body, v)
}

// decodeOptionalBody leaves v untouched when the body is empty, whatever
// the declared length.
func decodeOptionalBody(r *http.Request, v any) error {
	body, err := readBody(r)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	return decodeBytes(body, v)
}

func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", models.ErrInvalidArgument, err)
	}
	if len(body) > maxBodySize {
		return nil, fmt.Errorf("%w: body too large", models.ErrInvalidArgument)
	}
	return body, nil
}

func decodeBytes(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: invalid json", models.ErrInvalidArgument)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %s", models.ErrInvalidArgument, describe(err))
	}
	return nil
}

// describe turns validator errors into "field: rule" pairs.
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, strings.ToLower(fe.Field())+": "+fe.Tag())
	}
	return strings.Join(parts, ", ")
}
