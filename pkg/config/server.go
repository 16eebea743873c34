package config

import (
	"net"
	"strconv"

	"github.com/marmos91/dsserver/pkg/dsserver"
)

// ToServerConfig converts the server section to dsserver.Config.
func (s *ServerConfig) ToServerConfig() (dsserver.Config, error) {
	mode, err := dsserver.ParseClientMode(s.Mode)
	if err != nil {
		return dsserver.Config{}, err
	}

	cfg := dsserver.Config{
		ExecutableName:    s.Name,
		InstanceName:      s.Instance,
		Port:              s.Port,
		MaxClients:        s.MaxClients,
		MaxQuiescent:      s.MaxQuiescent,
		AcceptTimeout:     s.AcceptTimeout,
		ReadTimeout:       s.ReadTimeout,
		WriteTimeout:      s.WriteTimeout,
		DenyWriteTimeout:  s.DenyWriteTimeout,
		ShutdownTimeout:   s.ShutdownTimeout,
		MaxMessageSize:    s.MaxMessageSize,
		MaxAcceptFailures: s.MaxAcceptFailures,
		AcceptRate:        s.AcceptRate,
		AcceptBurst:       s.AcceptBurst,
		Mode:              mode,
		Debug:             s.Debug,
		Verbose:           s.Verbose,
	}
	if s.Host != "" {
		cfg.Address = net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
	}
	return cfg, nil
}
