package tuning

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Tuning is the contents of configs/gsync.yaml. Server and client binaries
// read the same file and each use their own section.
type Tuning struct {
	ProtocolVersion int `yaml:"protocol_version"`

	Server Server `yaml:"server"`
	Client Client `yaml:"client"`
}

type Server struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	RateHz     int    `yaml:"rate_hz"`
	GridN      int    `yaml:"grid_n"`
	MaxPlayers int    `yaml:"max_players"`
	Redundancy int    `yaml:"redundancy"`

	ResultsDir string `yaml:"results_dir"`
	DataDir    string `yaml:"data_dir"`
	HTTPAddr   string `yaml:"http_addr"`
	DisableDB  bool   `yaml:"disable_db"`
}

type Client struct {
	ServerHost string `yaml:"server_host"`
	ServerPort int    `yaml:"server_port"`
	ListenPort int    `yaml:"listen_port"`
	PlayerID   int    `yaml:"player_id"`
	Scenario   string `yaml:"scenario"`
	LogsDir    string `yaml:"logs_dir"`

	// ExpectedRateHz is the broadcast rate used for inter-arrival jitter.
	ExpectedRateHz  int `yaml:"expected_rate_hz"`
	FlushIntervalMs int `yaml:"flush_interval_ms"`
	// ClaimIntervalMs paces the headless claim driver; 0 disables it.
	ClaimIntervalMs int    `yaml:"claim_interval_ms"`
	MetricsAddr     string `yaml:"metrics_addr"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion: 1,
		Server: Server{
			Host:       "127.0.0.1",
			Port:       10000,
			RateHz:     20,
			GridN:      10,
			MaxPlayers: 8,
			Redundancy: 3,
			ResultsDir: "results",
			DataDir:    "data",
			HTTPAddr:   "127.0.0.1:8080",
		},
		Client: Client{
			ServerHost:      "127.0.0.1",
			ServerPort:      10000,
			Scenario:        "baseline",
			LogsDir:         "logs",
			ExpectedRateHz:  20,
			FlushIntervalMs: 1000,
			ClaimIntervalMs: 250,
		},
	}
}

// Load reads path on top of Defaults. An empty path yields the defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("gsync.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("gsync.yaml: %w", err)
	}
	return t, nil
}

// Normalize fills zero values left by a partial file.
func (t *Tuning) Normalize() {
	d := Defaults()
	s, c := &t.Server, &t.Client
	if s.Host == "" {
		s.Host = d.Server.Host
	}
	if s.Port == 0 {
		s.Port = d.Server.Port
	}
	if s.RateHz == 0 {
		s.RateHz = d.Server.RateHz
	}
	if s.GridN == 0 {
		s.GridN = d.Server.GridN
	}
	if s.MaxPlayers == 0 {
		s.MaxPlayers = d.Server.MaxPlayers
	}
	if s.Redundancy == 0 {
		s.Redundancy = d.Server.Redundancy
	}
	if s.ResultsDir == "" {
		s.ResultsDir = d.Server.ResultsDir
	}
	if s.DataDir == "" {
		s.DataDir = d.Server.DataDir
	}
	if c.ServerHost == "" {
		c.ServerHost = d.Client.ServerHost
	}
	if c.ServerPort == 0 {
		c.ServerPort = d.Client.ServerPort
	}
	if c.Scenario == "" {
		c.Scenario = d.Client.Scenario
	}
	if c.LogsDir == "" {
		c.LogsDir = d.Client.LogsDir
	}
	if c.ExpectedRateHz == 0 {
		c.ExpectedRateHz = s.RateHz
	}
	if c.FlushIntervalMs == 0 {
		c.FlushIntervalMs = d.Client.FlushIntervalMs
	}
}

func (t Tuning) Validate() error {
	if t.ProtocolVersion != 0 && t.ProtocolVersion != 1 {
		return fmt.Errorf("unsupported protocol_version %d", t.ProtocolVersion)
	}
	s, c := t.Server, t.Client
	// Tallies travel as one byte per player, so n*n must fit in 255.
	if s.GridN < 1 || s.GridN > 15 {
		return fmt.Errorf("server.grid_n must be in [1,15], got %d", s.GridN)
	}
	if s.MaxPlayers < 1 || s.MaxPlayers > 255 {
		return fmt.Errorf("server.max_players must be in [1,255], got %d", s.MaxPlayers)
	}
	if s.Redundancy < 1 || s.Redundancy > 16 {
		return fmt.Errorf("server.redundancy must be in [1,16], got %d", s.Redundancy)
	}
	if s.RateHz < 1 || s.RateHz > 1000 {
		return fmt.Errorf("server.rate_hz must be in [1,1000], got %d", s.RateHz)
	}
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", s.Port)
	}
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return fmt.Errorf("client.server_port out of range: %d", c.ServerPort)
	}
	if c.ListenPort < 0 || c.ListenPort > 65535 {
		return fmt.Errorf("client.listen_port out of range: %d", c.ListenPort)
	}
	if c.PlayerID < 0 || c.PlayerID > s.MaxPlayers {
		return fmt.Errorf("client.player_id must be in [0,%d], got %d", s.MaxPlayers, c.PlayerID)
	}
	if c.ExpectedRateHz < 1 {
		return fmt.Errorf("client.expected_rate_hz must be positive, got %d", c.ExpectedRateHz)
	}
	if c.FlushIntervalMs < 1 || c.ClaimIntervalMs < 0 {
		return fmt.Errorf("client intervals must be positive")
	}
	return nil
}

func (s Server) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

func (s Server) TickInterval() time.Duration { return time.Second / time.Duration(s.RateHz) }

func (c Client) ServerAddr() string { return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort) }

func (c Client) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalMs) * time.Millisecond
}

func (c Client) ClaimInterval() time.Duration {
	return time.Duration(c.ClaimIntervalMs) * time.Millisecond
}
