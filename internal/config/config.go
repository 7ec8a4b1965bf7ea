package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"villagedesk/internal/domain"
)

// Config models villagedesk.yml.
type Config struct {
	Village struct {
		Name string `yaml:"name"`
	} `yaml:"village"`
	Catalog struct {
		Categories map[string]struct {
			Description string `yaml:"description"`
		} `yaml:"categories"`
		Priorities []string `yaml:"priorities"`
	} `yaml:"catalog"`
	Registration struct {
		// Roles self-registration may request. Admin accounts are
		// created through user management, never at registration.
		Roles []string `yaml:"roles"`
	} `yaml:"registration"`
	Listing struct {
		PageSize int `yaml:"page_size"`
	} `yaml:"listing"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with vd init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Village.Name == "" {
		return fmt.Errorf("config.village.name is required")
	}
	if len(c.Catalog.Categories) == 0 {
		return fmt.Errorf("config.catalog.categories is required")
	}
	for id := range c.Catalog.Categories {
		if id == "" {
			return fmt.Errorf("config.catalog.categories contains empty id")
		}
	}
	if len(c.Catalog.Priorities) == 0 {
		return fmt.Errorf("config.catalog.priorities is required")
	}
	for _, p := range c.Catalog.Priorities {
		if p == "" {
			return fmt.Errorf("config.catalog.priorities contains empty value")
		}
	}
	if len(c.Registration.Roles) == 0 {
		return fmt.Errorf("config.registration.roles is required")
	}
	for _, r := range c.Registration.Roles {
		if !domain.ValidRole(r) {
			return fmt.Errorf("config.registration.roles contains unknown role %s", r)
		}
		if r == domain.RoleAdmin {
			return fmt.Errorf("config.registration.roles must not include admin")
		}
	}
	if c.Listing.PageSize <= 0 {
		return fmt.Errorf("config.listing.page_size must be positive")
	}
	return nil
}

// ValidCategory reports whether the category is in the catalog.
func (c *Config) ValidCategory(id string) bool {
	_, ok := c.Catalog.Categories[id]
	return ok
}

// ValidPriority reports whether the priority is in the catalog.
func (c *Config) ValidPriority(id string) bool {
	for _, p := range c.Catalog.Priorities {
		if p == id {
			return true
		}
	}
	return false
}

// RegistrationRole reports whether self-registration may request the role.
func (c *Config) RegistrationRole(role string) bool {
	for _, r := range c.Registration.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "villagedesk.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(villageName string) string {
	return fmt.Sprintf(defaultTemplate, villageName)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a village.
func Default(villageName string) *Config {
	var cfg Config
	cfg.Village.Name = villageName
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, villageName))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `village:
  name: %s

catalog:
  categories:
    infrastructure:
      description: "Roads, bridges, public buildings"
    health:
      description: "Clinics, sanitation, disease prevention"
    education:
      description: "Schools, teachers, learning materials"
    agriculture:
      description: "Crops, irrigation, livestock"
    water:
      description: "Drinking water, wells, pipelines"
    electricity:
      description: "Power supply and street lighting"
    transport:
      description: "Bus service, road access"
    other:
      description: "Anything not covered above"
  priorities: [low, medium, high, urgent]

registration:
  roles: [villager, volunteer]

listing:
  page_size: 50
`
