package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// APIResponse is the envelope every endpoint writes: an application status
// code plus payload. Except for 202, the wire status is always 200 and the
// envelope Status carries the real outcome.
type APIResponse struct {
	Status  int         `json:"status" example:"200"`
	Message string      `json:"message" example:"OK"`
	Data    interface{} `json:"data,omitempty"`
}

// ListDataResponse wraps list payloads with their total.
type ListDataResponse struct {
	Rows  interface{} `json:"rows"`
	Total int64       `json:"total"`
}

// ValidationError describes one failed rule on a bound request.
type ValidationError struct {
	Code    string                 `json:"code,omitempty" example:"ERR_DATETIME"`
	Field   string                 `json:"field,omitempty" example:"date"`
	Message string                 `json:"message,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// DataResponse writes the envelope with the given application status.
func DataResponse(c echo.Context, statusCode int, data interface{}) error {
	return c.JSON(http.StatusOK, APIResponse{
		Status:  statusCode,
		Message: http.StatusText(statusCode),
		Data:    data,
	})
}

// SuccessResponse writes a 200 envelope.
func SuccessResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusOK, data)
}

// ListResponse writes a 200 envelope around rows and their total.
func ListResponse(c echo.Context, rows interface{}, total int64) error {
	return DataResponse(c, http.StatusOK, &ListDataResponse{Rows: rows, Total: total})
}

// AcceptedResponse writes a 202 envelope with wire status 202, for work that
// continues after the response is sent.
func AcceptedResponse(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusAccepted, APIResponse{
		Status:  http.StatusAccepted,
		Message: http.StatusText(http.StatusAccepted),
		Data:    data,
	})
}

// BadRequestResponse writes a 400 envelope, usually around validation errors.
func BadRequestResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusBadRequest, data)
}

// InternalServerErrorResponse writes a 500 envelope without leaking the cause.
func InternalServerErrorResponse(c echo.Context) error {
	return DataResponse(c, http.StatusInternalServerError, "Something went wrong")
}

// AppErrorResponse maps an error onto the envelope: an AppError keeps its
// status and surfaces as a one-element list, anything else becomes a 500.
func AppErrorResponse(c echo.Context, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return DataResponse(c, appErr.Status, []*AppError{appErr})
	}
	return InternalServerErrorResponse(c)
}
