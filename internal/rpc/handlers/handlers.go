package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

type Method string
type Path string
type ApiVersion string

// The read API only serves GET.
const HTTP_GET Method = http.MethodGet

const ApiV1 ApiVersion = "v1"

func CreateApiPath(version ApiVersion, path string) Path {
	path = strings.TrimPrefix(path, "/")
	return Path("/api/" + string(version) + "/" + path)
}

type HandlerFunc func(r *http.Request) (any, error)

type MethodHandlers map[Path]map[Method]HandlerFunc

// HttpError lets a handler pick the response status.
type HttpError struct {
	Status  int
	Message string
}

func (e *HttpError) Error() string {
	return e.Message
}

func badRequest(message string) error {
	return &HttpError{Status: http.StatusBadRequest, Message: message}
}

func SetupHandlers(mux *http.ServeMux, handlers MethodHandlers) {
	for path, methodHandlers := range handlers {
		mux.HandleFunc(string(path), func(w http.ResponseWriter, r *http.Request) {
			handler, ok := methodHandlers[Method(r.Method)]
			if !ok {
				http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
				return
			}
			resp, err := handler(r)
			if err != nil {
				writeError(w, r, err)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			if resp == nil {
				return
			}
			if err := json.NewEncoder(w).Encode(resp); err != nil {
				zap.L().Error("failed to encode response", zap.String("path", r.URL.Path), zap.Error(err))
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		})
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var httpErr *HttpError
	if errors.As(err, &httpErr) {
		http.Error(w, httpErr.Message, httpErr.Status)
		return
	}
	zap.L().Error("failed to handle request", zap.String("path", r.URL.Path), zap.Error(err))
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
