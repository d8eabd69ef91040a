// Package service exposes the state of a client over HTTP.
package service

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/popstellar/popclient/src/ingestion"
	"github.com/popstellar/popclient/src/net"
	"github.com/sirupsen/logrus"
)

// Service serves the status API.
type Service struct {
	sync.Mutex

	bindAddress string
	pipeline    *ingestion.Pipeline
	network     *net.Manager
	mux         *http.ServeMux
	server      *http.Server
	logger      *logrus.Entry
}

// ConnectionInfo describes a relay connection.
type ConnectionInfo struct {
	Address string `json:"address"`
	State   string `json:"state"`
}

// MessageInfo describes a received message.
type MessageInfo struct {
	MessageID         string      `json:"message_id"`
	Channel           string      `json:"channel"`
	Sender            string      `json:"sender"`
	ReceivedFrom      string      `json:"received_from"`
	ReceivedAt        int64       `json:"received_at"`
	ProcessedAt       int64       `json:"processed_at,omitempty"`
	WitnessSignatures interface{} `json:"witness_signatures"`
}

// NewService ...
func NewService(bindAddress string, pipeline *ingestion.Pipeline, network *net.Manager, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		pipeline:    pipeline,
		network:     network,
		mux:         http.NewServeMux(),
		logger:      logger,
	}

	service.registerHandlers()

	return &service
}

// registerHandlers registers the API handlers with the mux of the service.
func (s *Service) registerHandlers() {
	s.logger.Debug("Registering status API handlers")
	s.mux.HandleFunc("/stats", s.makeHandler(s.GetStats))
	s.mux.HandleFunc("/connections", s.makeHandler(s.GetConnections))
	s.mux.HandleFunc("/unprocessed", s.makeHandler(s.GetUnprocessed))
	s.mux.HandleFunc("/message/", s.makeHandler(s.GetMessage))
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Handler returns the handler serving the API.
func (s *Service) Handler() http.Handler {
	return s.mux
}

// Serve calls ListenAndServe. This is a blocking call.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving status API")

	s.Lock()
	s.server = &http.Server{Addr: s.bindAddress, Handler: s.mux}
	server := s.server
	s.Unlock()

	err := server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		s.logger.Error(err)
	}
}

// Shutdown stops the server started by Serve.
func (s *Service) Shutdown(ctx context.Context) error {
	s.Lock()
	server := s.server
	s.Unlock()

	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := s.pipeline.Stats()

	res := map[string]int{
		"known":       stats.Known,
		"processed":   stats.Processed,
		"unprocessed": stats.Unprocessed,
		"connections": len(s.network.Connections()),
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(res)
}

// GetConnections ...
func (s *Service) GetConnections(w http.ResponseWriter, r *http.Request) {
	res := []ConnectionInfo{}
	for _, c := range s.network.Connections() {
		res = append(res, ConnectionInfo{
			Address: c.Address(),
			State:   c.State().String(),
		})
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(res)
}

// GetUnprocessed ...
func (s *Service) GetUnprocessed(w http.ResponseWriter, r *http.Request) {
	res := []string{}
	for _, m := range s.pipeline.Unprocessed() {
		res = append(res, m.MessageID())
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(res)
}

// GetMessage ...
func (s *Service) GetMessage(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/message/")

	snap, ok := s.pipeline.Snapshot(id)
	if !ok {
		s.logger.WithField("message_id", id).Debug("Unknown message")

		http.Error(w, "unknown message "+id, http.StatusNotFound)

		return
	}

	info := MessageInfo{
		MessageID:         snap.Envelope.MessageID(),
		Channel:           snap.Envelope.Channel().String(),
		Sender:            snap.Envelope.Sender().String(),
		ReceivedFrom:      snap.ReceivedFrom,
		ReceivedAt:        snap.ReceivedAt.UnixNano(),
		WitnessSignatures: snap.WitnessSignatures,
	}

	if snap.ProcessedAt != nil {
		info.ProcessedAt = snap.ProcessedAt.UnixNano()
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(info)
}
