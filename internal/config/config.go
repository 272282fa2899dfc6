package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/forgeapp/forge/internal/utils"
)

var (
	home, _           = os.UserHomeDir()
	DefaultConfigPath = filepath.Join(home, ".forge", "config.json")
	DefaultDataDir    = filepath.Join(home, ".forge")
	DefaultBindAddr   = "127.0.0.1:7430"
	DefaultLogFile    = filepath.Join(home, ".forge", "logs", "forge.log")
)

var (
	ErrProjectNotFound  = errors.New("project not found")
	ErrUnknownProtocol  = errors.New("unknown protocol")
	ErrMissingLocalPath = errors.New("project local path is required")
)

// Protocol selects the deployment transport for a project.
type Protocol string

const (
	ProtocolFTP  Protocol = "ftp"
	ProtocolFTPS Protocol = "ftps"
	ProtocolSFTP Protocol = "sftp"
)

// Remote is the deployment endpoint of a project.
type Remote struct {
	Protocol   Protocol `json:"protocol"`
	Host       string   `json:"host"`
	Port       int      `json:"port"`
	Username   string   `json:"username"`
	Password   string   `json:"password"`
	RemotePath string   `json:"remote_path"`
	Passive    bool     `json:"passive"`
}

func (r *Remote) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func (r *Remote) Validate() error {
	switch r.Protocol {
	case ProtocolFTP, ProtocolFTPS, ProtocolSFTP:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownProtocol, r.Protocol)
	}
	if r.Host == "" {
		return errors.New("remote host is required")
	}
	if r.Port == 0 {
		if r.Protocol == ProtocolSFTP {
			r.Port = 22
		} else {
			r.Port = 21
		}
	}
	if r.Port < 0 || r.Port > 65535 {
		return fmt.Errorf("invalid remote port %d", r.Port)
	}
	return nil
}

// Schedule configures automatic syncs for a project. Expr is a standard
// 5-field cron expression.
type Schedule struct {
	Enabled bool   `json:"enabled"`
	Expr    string `json:"expr"`
}

// Project is one client website managed by Forge.
type Project struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	LocalPath string   `json:"local_path"`
	SiteURL   string   `json:"site_url,omitempty"`
	Remote    Remote   `json:"remote"`
	Schedule  Schedule `json:"schedule,omitempty"`
}

func (p *Project) Validate() error {
	if p.ID == "" {
		return errors.New("project id is required")
	}
	if p.LocalPath == "" {
		return fmt.Errorf("%w (project %s)", ErrMissingLocalPath, p.ID)
	}
	if err := p.Remote.Validate(); err != nil {
		return fmt.Errorf("project %s: %w", p.ID, err)
	}
	return nil
}

// InboxDir is the drop folder watched for incoming client files.
func (p *Project) InboxDir() string {
	return filepath.Join(p.LocalPath, "_Inbox")
}

// Config is the daemon configuration and project registry.
type Config struct {
	DataDir   string    `json:"data_dir"`
	BindAddr  string    `json:"bind_addr"`
	AuthToken string    `json:"auth_token,omitempty"`
	Projects  []Project `json:"projects"`

	Path string `json:"-"`
}

func (c *Config) Validate() error {
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.BindAddr == "" {
		c.BindAddr = DefaultBindAddr
	}
	seen := make(map[string]struct{}, len(c.Projects))
	for i := range c.Projects {
		p := &c.Projects[i]
		if err := p.Validate(); err != nil {
			return err
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("duplicate project id %q", p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	return nil
}

// Project returns the project with the given id.
func (c *Config) Project(id string) (*Project, error) {
	for i := range c.Projects {
		if c.Projects[i].ID == id {
			return &c.Projects[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, id)
}

// DBPath is the sqlite database holding snapshots and delta signatures.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "forge.db")
}

// BackupDir holds snapshot backup copies.
func (c *Config) BackupDir() string {
	return filepath.Join(c.DataDir, "backups")
}

func (c *Config) Save(path string) error {
	if err := utils.EnsureParent(path); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config parse %q: %w", path, err)
	}

	cfg.Path = path
	return &cfg, nil
}
