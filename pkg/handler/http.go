package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/foomo/annotationserver/pkg/annotation"
	"github.com/foomo/annotationserver/pkg/metrics"
	"github.com/foomo/annotationserver/pkg/session"
	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type (
	// Store is the record store behind the editors and the api
	Store interface {
		session.Store
		Keys(ctx context.Context) ([]string, error)
	}
	HTTP struct {
		l         *zap.Logger
		basePath  string
		maxMemory int64
		store     Store
		sessions  *session.Manager
		router    *mux.Router
	}
	HTTPOption func(*HTTP)
)

// ------------------------------------------------------------------------------------------------
// ~ Constructor
// ------------------------------------------------------------------------------------------------

// NewHTTP returns the handler serving both editors, the trigger script and the json api
func NewHTTP(l *zap.Logger, store Store, sessions *session.Manager, opts ...HTTPOption) http.Handler {
	inst := &HTTP{
		l:         l.Named("http"),
		basePath:  "/annotations",
		maxMemory: 32 << 20,
		store:     store,
		sessions:  sessions,
	}

	for _, opt := range opts {
		opt(inst)
	}

	inst.basePath = strings.TrimSuffix(inst.basePath, "/")
	inst.router = inst.routes()

	return inst
}

// ------------------------------------------------------------------------------------------------
// ~ Options
// ------------------------------------------------------------------------------------------------

func WithBasePath(v string) HTTPOption {
	return func(o *HTTP) {
		o.basePath = v
	}
}

// WithMaxMemory sets how much of a multipart upload is kept in memory before spilling to disk
func WithMaxMemory(v int64) HTTPOption {
	return func(o *HTTP) {
		o.maxMemory = v
	}
}

// ------------------------------------------------------------------------------------------------
// ~ Public methods
// ------------------------------------------------------------------------------------------------

func (h *HTTP) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// ------------------------------------------------------------------------------------------------
// ~ Private methods
// ------------------------------------------------------------------------------------------------

func (h *HTTP) routes() *mux.Router {
	router := mux.NewRouter()
	s := router
	if h.basePath != "" {
		s = router.PathPrefix(h.basePath).Subrouter()
	}

	s.Handle("/popup", h.instrument(RoutePopup, h.popup)).Methods(http.MethodGet)
	s.Handle("/popup/save", h.instrument(RoutePopupSave, h.popupSave)).Methods(http.MethodPost)
	s.Handle("/popup/close", h.instrument(RoutePopupClose, h.popupClose)).Methods(http.MethodPost)
	s.Handle("/page", h.instrument(RoutePage, h.page)).Methods(http.MethodGet)
	s.Handle("/page", h.instrument(RoutePageSave, h.pageSave)).Methods(http.MethodPost)
	s.Handle("/static/popup.js", h.instrument(RouteStatic, h.static)).Methods(http.MethodGet)
	s.Handle("/api/explanations", h.instrument(RouteKeys, h.keys)).Methods(http.MethodGet)
	s.Handle("/api/explanations/{item}", h.instrument(RouteLoad, h.load)).Methods(http.MethodGet)
	s.Handle("/api/explanations/{item}", h.instrument(RouteSave, h.save)).Methods(http.MethodPut)

	return router
}

func (h *HTTP) instrument(route Route, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next(rec, r)

		result := "success"
		if rec.status >= http.StatusBadRequest {
			result = "error"
		}
		metrics.ServiceRequestCounter.WithLabelValues(string(route), result).Inc()
		metrics.ServiceRequestDuration.WithLabelValues(string(route), result).Observe(time.Since(start).Seconds())
	})
}

func (h *HTTP) pageURL() string {
	return h.basePath + "/page"
}

// errorStatus maps save errors to response codes
func errorStatus(err error) int {
	switch {
	case errors.Is(err, annotation.ErrInvalidKey):
		return http.StatusBadRequest
	case errors.Is(err, annotation.ErrImageTooLarge):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
