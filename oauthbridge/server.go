package oauthbridge

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// ReturnHandler receives the captured redirect: the query parameters of
// a server-mediated redirect, or the posted identity of a state-channel
// return.
type ReturnHandler func(navIdentity *Identity, query url.Values)

// ReturnServer is the loopback endpoint the external provider redirects
// back into. It captures identity attributes, hands them to the bridge,
// and answers with a parameter-free page so a reload cannot resubmit.
type ReturnServer struct {
	addr          string
	allowedOrigin string
	handler       ReturnHandler
	logger        *zap.Logger

	srv *http.Server
}

// NewReturnServer creates a loopback return server on addr
func NewReturnServer(addr, allowedOrigin string, handler ReturnHandler, logger *zap.Logger) *ReturnServer {
	return &ReturnServer{
		addr:          addr,
		allowedOrigin: allowedOrigin,
		handler:       handler,
		logger:        logger,
	}
}

// Routes builds the chi router for the return endpoint
func (s *ReturnServer) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(10 * time.Second))

	corsOrigins := []string{"http://127.0.0.1:*", "http://localhost:*"}
	if s.allowedOrigin != "" {
		corsOrigins = append(corsOrigins, s.allowedOrigin)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Server-mediated redirect: identity rides in query parameters.
	r.Get("/return", func(w http.ResponseWriter, req *http.Request) {
		s.handler(nil, req.URL.Query())
		// Strip the transient parameters from the visible URL.
		http.Redirect(w, req, "/return/done", http.StatusSeeOther)
	})

	// State channel: the provider's page posts the identity as JSON.
	r.Post("/return", func(w http.ResponseWriter, req *http.Request) {
		var identity Identity
		if err := json.NewDecoder(req.Body).Decode(&identity); err != nil {
			s.logger.Warn("unreadable return payload", zap.Error(err))
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.handler(&identity, nil)
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/return/done", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body>Login complete. You can return to the app.</body></html>"))
	})

	return r
}

// Start begins serving on the loopback address. It returns once the
// listener is bound; serving continues until Shutdown.
func (s *ReturnServer) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.srv = &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("return server failed", zap.Error(err))
		}
	}()

	s.logger.Info("return server listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Shutdown stops the server gracefully
func (s *ReturnServer) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
