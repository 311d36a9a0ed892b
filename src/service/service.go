package service

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/mosaicnetworks/ledgerclient/src/client"
	"github.com/sirupsen/logrus"
)

// StatsSource is what the service reports on.
type StatsSource interface {
	GetStats() client.Stats
}

// Service exposes the health of the client's nodes, and its request counters,
// over HTTP.
type Service struct {
	bindAddress string
	source      StatsSource
	logger      *logrus.Entry
	mux         *http.ServeMux
	server      *http.Server
}

// NewService ...
func NewService(bindAddress string, source StatsSource, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		source:      source,
		logger:      logger,
		mux:         http.NewServeMux(),
	}

	service.registerHandlers()

	return &service
}

func (s *Service) registerHandlers() {
	s.logger.Debug("Registering diagnostics API handlers")
	s.mux.HandleFunc("/stats", s.makeHandler(s.GetStats))
	s.mux.HandleFunc("/nodes", s.makeHandler(s.GetNodes))
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Handler returns the handler serving the API.
func (s *Service) Handler() http.Handler {
	return s.mux
}

// Serve calls ListenAndServe. This is a blocking call. It returns nil after
// Shutdown.
func (s *Service) Serve() error {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving diagnostics API")

	s.server = &http.Server{
		Addr:              s.bindAddress,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	if err != nil {
		s.logger.Error(err)
	}
	return err
}

// Shutdown stops a running server.
func (s *Service) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := s.source.GetStats()

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(stats.Requests); err != nil {
		s.logger.WithError(err).Error("Encoding stats")
	}
}

// GetNodes ...
func (s *Service) GetNodes(w http.ResponseWriter, r *http.Request) {
	stats := s.source.GetStats()

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(stats.Nodes); err != nil {
		s.logger.WithError(err).Error("Encoding nodes")
	}
}
