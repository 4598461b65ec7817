package utils

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"
)

// APIError 是返回给客户端的错误结构。
type APIError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// RespondJSON 发送JSON响应
func RespondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logrus.WithError(err).Warn("failed to encode response")
	}
}

// RespondError 发送错误响应
func RespondError(w http.ResponseWriter, status int, code Code, message string) {
	RespondJSON(w, status, APIError{Code: code, Message: message})
}

// RespondAppError maps err onto a status code and writes its safe message.
func RespondAppError(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)

	var ae *AppError
	if errors.As(err, &ae) {
		RespondError(w, status, ae.Code, ae.Message)
		return
	}

	RespondError(w, status, CodeInternal, http.StatusText(status))
}
