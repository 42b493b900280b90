package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/linemk/order-service/internal/domain/models"
	"github.com/linemk/order-service/internal/service"
	"github.com/linemk/order-service/internal/storage"
)

// SuccessResponse общий конверт успешного ответа
type SuccessResponse struct {
	Success bool             `json:"success"`
	Data    any              `json:"data,omitempty"`
	Meta    *models.PageMeta `json:"meta,omitempty"`
	Message string           `json:"message,omitempty"`
}

// ErrorResponse общий конверт ошибки
type ErrorResponse struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Timestamp  string `json:"timestamp"`
	Path       string `json:"path"`
}

var validate = newValidator()

// имена полей в ошибках валидации берутся из json-тегов
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to encode response", slog.Any("error", err))
	}
}

func respondOK(w http.ResponseWriter, logger *slog.Logger, status int, data any, meta *models.PageMeta, message string) {
	writeJSON(w, logger, status, SuccessResponse{
		Success: true,
		Data:    data,
		Meta:    meta,
		Message: message,
	})
}

func respondError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, status int, message string) {
	writeJSON(w, logger, status, ErrorResponse{
		Success:    false,
		StatusCode: status,
		Message:    message,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Path:       r.URL.Path,
	})
}

// respondServiceError переводит ошибку сервиса в код и текст ответа
func respondServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, message := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", slog.Any("error", err))
	} else {
		logger.Warn("request rejected", slog.Int("status", status), slog.Any("error", err))
	}
	respondError(w, r, logger, status, message)
}

func errorStatus(err error) (int, string) {
	var (
		stockErr      *service.InsufficientStockError
		productErr    *service.ProductNotFoundError
		transitionErr *models.TransitionError
	)

	switch {
	case errors.As(err, &stockErr):
		return http.StatusBadRequest, stockErr.Error()
	case errors.As(err, &productErr):
		return http.StatusBadRequest, productErr.Error()
	case errors.As(err, &transitionErr):
		return http.StatusBadRequest, fmt.Sprintf("Cannot transition from %s to %s", transitionErr.From, transitionErr.To)
	case errors.Is(err, service.ErrEmptyOrder):
		return http.StatusBadRequest, "Order must contain at least one item"
	case errors.Is(err, service.ErrInvalidQuantity):
		return http.StatusBadRequest, "Quantity must be a positive integer"
	case errors.Is(err, service.ErrInvalidStatus):
		return http.StatusBadRequest, "Invalid order status"
	case errors.Is(err, service.ErrOrderNotFound):
		return http.StatusNotFound, "Order not found"
	case errors.Is(err, storage.ErrOrderLocked):
		return http.StatusConflict, "Order is being updated, please try again"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// validationMessage собирает читаемый текст из ошибок validator
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "validation error"
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s", field, fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

// pagination читает page и limit; отсутствующие значения отдаются нулём,
// умолчания и верхнюю границу применяет сервис
func pagination(r *http.Request) (page, limit int, err error) {
	if page, err = queryInt(r, "page"); err != nil {
		return 0, 0, err
	}
	if limit, err = queryInt(r, "limit"); err != nil {
		return 0, 0, err
	}
	return page, limit, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return n, nil
}
