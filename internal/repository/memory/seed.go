package memory

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"equipshare-backend/internal/domain"
)

// Seed describes fixture data for the dev profile.
type Seed struct {
	Organizations []struct {
		ID           string   `yaml:"id"`
		Name         string   `yaml:"name"`
		ContactEmail string   `yaml:"contact_email"`
		ContactName  string   `yaml:"contact_name"`
		Members      []string `yaml:"members"`
	} `yaml:"organizations"`
	Equipment []struct {
		ID                   string `yaml:"id"`
		Name                 string `yaml:"name"`
		OwningOrganizationID string `yaml:"owning_organization_id"`
	} `yaml:"equipment"`
}

// LoadSeed reads a YAML seed file into s.
func (s *Store) LoadSeed(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}
	return s.ApplySeed(data)
}

func (s *Store) ApplySeed(data []byte) error {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("failed to parse seed file: %w", err)
	}
	for _, o := range seed.Organizations {
		if o.ID == "" {
			return fmt.Errorf("seed organization without id")
		}
		s.AddOrganization(domain.Organization{
			ID:           o.ID,
			Name:         o.Name,
			ContactEmail: o.ContactEmail,
			ContactName:  o.ContactName,
		}, o.Members...)
	}
	for _, e := range seed.Equipment {
		if e.ID == "" || e.OwningOrganizationID == "" {
			return fmt.Errorf("seed equipment needs id and owning_organization_id")
		}
		s.AddEquipment(domain.Equipment{ID: e.ID, Name: e.Name, OwningOrganizationID: e.OwningOrganizationID})
	}
	return nil
}
