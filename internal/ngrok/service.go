// Package ngrok exposes the local server through an ngrok endpoint so that
// link previews resolve against a public origin.
package ngrok

import (
	"context"
	"fmt"
	"os"

	"mixtape/internal/config"

	"github.com/sirupsen/logrus"
	"golang.ngrok.com/ngrok/v2"
)

// Service represents the ngrok tunnel service. A nil *Service is a disabled
// tunnel and all of its methods are no-ops.
type Service struct {
	config *config.NgrokConfig
	logger *logrus.Logger
	agent  ngrok.Agent
	tunnel ngrok.EndpointForwarder
}

// NewService creates a new ngrok service instance. It returns nil, nil when
// the tunnel is disabled.
func NewService(cfg *config.NgrokConfig, logger *logrus.Logger) (*Service, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	authToken := cfg.AuthToken
	if authToken == "" {
		authToken = os.Getenv("NGROK_AUTHTOKEN")
	}
	if authToken == "" {
		return nil, fmt.Errorf("ngrok auth token not found: set NGROK_AUTHTOKEN or [ngrok] auth_token")
	}

	agent, err := ngrok.NewAgent(ngrok.WithAuthtoken(authToken))
	if err != nil {
		return nil, fmt.Errorf("failed to create ngrok agent: %w", err)
	}

	return &Service{
		config: cfg,
		logger: logger,
		agent:  agent,
	}, nil
}

// StartTunnel starts forwarding the public endpoint to localAddress.
func (s *Service) StartTunnel(ctx context.Context, localAddress string) error {
	if s == nil {
		return nil
	}

	s.logger.Info("Starting ngrok tunnel")

	var endpointOpts []ngrok.EndpointOption
	if s.config.Domain != "" {
		endpointOpts = append(endpointOpts, ngrok.WithURL(s.config.Domain))
	}

	tunnel, err := s.agent.Forward(ctx, ngrok.WithUpstream(localAddress), endpointOpts...)
	if err != nil {
		return fmt.Errorf("failed to create ngrok tunnel: %w", err)
	}
	s.tunnel = tunnel

	s.logger.WithFields(logrus.Fields{
		"public_url": tunnel.URL().String(),
		"upstream":   localAddress,
	}).Info("Ngrok tunnel active")
	return nil
}

// GetPublicURL returns the public URL of the tunnel
func (s *Service) GetPublicURL() string {
	if s == nil || s.tunnel == nil {
		return ""
	}
	return s.tunnel.URL().String()
}

// Stop stops the ngrok tunnel
func (s *Service) Stop() error {
	if s == nil || s.tunnel == nil {
		return nil
	}

	s.logger.Info("Stopping ngrok tunnel")
	return s.tunnel.Close()
}
