package params

import (
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// SeedValidator mirrors a validator record owned by the management layer.
type SeedValidator struct {
	ID            string `yaml:"id"`
	UserID        string `yaml:"userId"`
	Name          string `yaml:"name"`
	BeaconNodeURL string `yaml:"beaconNodeUrl"`
	IsActive      bool   `yaml:"isActive"`
}

// SeedAgent mirrors an agent registration owned by the management layer.
type SeedAgent struct {
	ID          string `yaml:"id"`
	ValidatorID string `yaml:"validatorId"`
	APIKey      string `yaml:"apiKey"`
	IsActive    bool   `yaml:"isActive"`
}

// SeedWebhook mirrors a webhook subscription owned by the management layer.
type SeedWebhook struct {
	ID       string   `yaml:"id"`
	UserID   string   `yaml:"userId"`
	URL      string   `yaml:"url"`
	Secret   string   `yaml:"secret"`
	Events   []string `yaml:"events"`
	IsActive bool     `yaml:"isActive"`
}

// SeedRegistry is the startup import format for externally managed
// records. The collector upserts its contents at boot; record lifecycle
// stays with the management layer.
type SeedRegistry struct {
	Validators []SeedValidator `yaml:"validators"`
	Agents     []SeedAgent     `yaml:"agents"`
	Webhooks   []SeedWebhook   `yaml:"webhooks"`
}

// LoadSeedRegistry reads and strictly parses a seed registry yaml file.
func LoadSeedRegistry(fileName string) (*SeedRegistry, error) {
	yamlFile, err := os.ReadFile(fileName) // #nosec G304
	if err != nil {
		return nil, errors.Wrap(err, "failed to read seed registry file")
	}
	reg := &SeedRegistry{}
	if err := yaml.UnmarshalStrict(yamlFile, reg); err != nil {
		return nil, errors.Wrap(err, "failed to parse seed registry yaml")
	}
	for i, v := range reg.Validators {
		if v.ID == "" {
			return nil, errors.Errorf("seed validator at index %d has no id", i)
		}
	}
	for i, a := range reg.Agents {
		if a.ID == "" || a.ValidatorID == "" || a.APIKey == "" {
			return nil, errors.Errorf("seed agent at index %d is missing id, validatorId or apiKey", i)
		}
	}
	for i, w := range reg.Webhooks {
		if w.ID == "" || w.URL == "" {
			return nil, errors.Errorf("seed webhook at index %d is missing id or url", i)
		}
	}
	log.WithField("fileName", fileName).Debugf(
		"Seed registry loaded: %d validators, %d agents, %d webhooks",
		len(reg.Validators), len(reg.Agents), len(reg.Webhooks))
	return reg, nil
}
