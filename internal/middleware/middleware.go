package middleware

import (
	"net/http"
	"time"

	logger "github.com/chi-middleware/logrus-logger"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
)

// Logger logs one line per request through log.
func Logger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return logger.Logger("router", log)
}

// Recoverer is chi's Recoverer with the panic reported through log instead
// of chi's stderr printer.
func Recoverer(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		recoverer := chimw.Recoverer(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			recoverer.ServeHTTP(w, chimw.WithLogEntry(r, panicEntry{log: log, r: r}))
		})
	}
}

// panicEntry is the chi LogEntry Recoverer hands a panic to. Request lines
// are written by Logger, so Write does nothing.
type panicEntry struct {
	log logrus.FieldLogger
	r   *http.Request
}

func (e panicEntry) Write(int, int, http.Header, time.Duration, interface{}) {}

func (e panicEntry) Panic(v interface{}, stack []byte) {
	e.log.WithFields(logrus.Fields{
		"panic":      v,
		"path":       e.r.URL.Path,
		"request_id": chimw.GetReqID(e.r.Context()),
		"stack":      string(stack),
	}).Error("handler panic")
}

// RequestID tags each request with an id readable via chi's GetReqID.
func RequestID(next http.Handler) http.Handler {
	return chimw.RequestID(next)
}

// CORS allows the configured origins to call the JSON API.
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	})
}
