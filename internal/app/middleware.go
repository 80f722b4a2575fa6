package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"github.com/timebok/timebok/pkg/auth"
	"github.com/timebok/timebok/pkg/practitioner"
)

const requestIdHeader = "X-Request-Id"

// SetupMiddleware wires all HTTP middlewares for the application.
func SetupMiddleware(r *mux.Router, deps *Dependencies) {
	r.Use(requestLogging)
	r.Use(callerResolution(deps.AuthHandler, deps.Sessions, deps.PractitionerService))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		requestId := req.Header.Get(requestIdHeader)
		if requestId == "" {
			requestId = uuid.NewString()
		}
		w.Header().Set(requestIdHeader, requestId)

		started := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, req)

		log.WithFields(log.Fields{
			"request_id":  requestId,
			"method":      req.Method,
			"path":        req.URL.Path,
			"status":      recorder.status,
			"duration_ms": time.Since(started).Milliseconds(),
		}).Debug("request handled")
	})
}

type practitionerGetter interface {
	GetPractitioner(ctx context.Context, id int) (practitioner.Practitioner, error)
}

// callerResolution puts the session's practitioner into the request context. Requests
// without a valid session continue anonymously; services decide whether that is enough.
func callerResolution(tokens *auth.Handler, sessions *auth.SessionManager, practitioners practitionerGetter) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			raw := tokens.TokenFromRequest(req)
			if raw == "" {
				next.ServeHTTP(w, req)
				return
			}

			caller, err := sessions.Parse(raw)
			if err != nil {
				log.Debugf("ignoring session: %v", err)
				next.ServeHTTP(w, req)
				return
			}

			ctx := req.Context()
			p, err := practitioners.GetPractitioner(ctx, caller.PractitionerId)
			if err != nil {
				if !errors.Is(err, practitioner.ErrPractitionerNotFound) {
					log.Errorf("failed to resolve session practitioner %d: %v", caller.PractitionerId, err)
					http.Error(w, "failed to resolve session", http.StatusInternalServerError)
					return
				}
				log.Debugf("session practitioner %d no longer exists", caller.PractitionerId)
				next.ServeHTTP(w, req)
				return
			}
			if !p.HasCredentials() || p.Username != caller.Username {
				log.Debugf("session of practitioner %d no longer matches their login", caller.PractitionerId)
				next.ServeHTTP(w, req)
				return
			}

			caller.Name = p.Name
			next.ServeHTTP(w, req.WithContext(auth.WithCaller(ctx, caller)))
		})
	}
}
