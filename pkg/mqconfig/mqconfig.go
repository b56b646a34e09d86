// Package mqconfig loads connection properties from a YAML file into a
// pkg/mqc.Config, for applications that prefer a config file over
// composing mqc.Option values directly.
package mqconfig

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nclabs/mqgo/pkg/mqc"
)

// File is the top-level shape of a connection-properties YAML document.
type File struct {
	Broker struct {
		Host              string `yaml:"host"`
		BootstrapPort     int    `yaml:"bootstrap_port"`
		PortmapperService string `yaml:"portmapper_service"`
		PortmapperTimeout string `yaml:"portmapper_timeout"`
	} `yaml:"broker"`

	TLS struct {
		Enabled  bool   `yaml:"enabled"`
		CAFile   string `yaml:"ca_file"`
		Insecure bool   `yaml:"insecure_skip_verify"`
	} `yaml:"tls"`

	Auth struct {
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		Type     string `yaml:"type"`
	} `yaml:"auth"`

	ClientID string `yaml:"client_id"`

	Timeouts struct {
		Write        string `yaml:"write"`
		Ack          string `yaml:"ack"`
		PingInterval string `yaml:"ping_interval"`
	} `yaml:"timeouts"`

	FlowControl struct {
		Enabled    bool  `yaml:"enabled"`
		ChunkCount int32 `yaml:"chunk_count"`
		WaterMark  int32 `yaml:"water_mark"`
	} `yaml:"flow_control"`
}

// Load reads path and parses it into a File.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mqconfig: read %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("mqconfig: parse %s: %w", path, err)
	}
	return &f, nil
}

// Options turns a parsed File into the mqc.Option slice NewConfig/Connect
// expect, applying mqc.DefaultConfig's values for any timeout left blank.
func (f *File) Options() ([]mqc.Option, error) {
	opts := []mqc.Option{
		mqc.WithAddress(f.Broker.Host, f.Broker.BootstrapPort),
	}
	if f.Broker.PortmapperService != "" {
		opts = append(opts, mqc.WithPortmapperService(f.Broker.PortmapperService))
	}
	if f.Auth.Username != "" || f.Auth.Password != "" {
		opts = append(opts, mqc.WithCredentials(f.Auth.Username, f.Auth.Password))
	}
	if f.ClientID != "" {
		opts = append(opts, mqc.WithClientID(f.ClientID))
	}

	if f.TLS.Enabled {
		tlsCfg := &tls.Config{InsecureSkipVerify: f.TLS.Insecure}
		if f.TLS.CAFile != "" {
			pem, err := os.ReadFile(f.TLS.CAFile)
			if err != nil {
				return nil, fmt.Errorf("mqconfig: read ca_file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(pem) {
				return nil, fmt.Errorf("mqconfig: ca_file %s contains no valid certificates", f.TLS.CAFile)
			}
			tlsCfg.RootCAs = pool
		}
		opts = append(opts, mqc.WithTLS(tlsCfg))
	}

	def := mqc.DefaultConfig()
	write, err := parseDurationOr(f.Timeouts.Write, def.WriteTimeout)
	if err != nil {
		return nil, err
	}
	ack, err := parseDurationOr(f.Timeouts.Ack, def.AckTimeout)
	if err != nil {
		return nil, err
	}
	ping, err := parseDurationOr(f.Timeouts.PingInterval, def.PingInterval)
	if err != nil {
		return nil, err
	}
	opts = append(opts, mqc.WithTimeouts(write, ack, ping))

	if f.FlowControl.ChunkCount != 0 || f.FlowControl.WaterMark != 0 {
		opts = append(opts, mqc.WithFlowControl(f.FlowControl.Enabled, f.FlowControl.ChunkCount, f.FlowControl.WaterMark))
	}

	return opts, nil
}

func parseDurationOr(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("mqconfig: invalid duration %q: %w", s, err)
	}
	return d, nil
}

// Connect loads path and opens a Connection in one call.
func Connect(path string) (*mqc.Connection, error) {
	f, err := Load(path)
	if err != nil {
		return nil, err
	}
	opts, err := f.Options()
	if err != nil {
		return nil, err
	}
	return mqc.Connect(opts...)
}
