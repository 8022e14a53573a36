package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedYAML = `
organizations:
  - id: org-a
    name: North Depot
    contact_email: depot@north.example
    members: [alice]
  - id: org-b
    name: South Clinic
    members: [bob, beth]
equipment:
  - id: eq-1
    name: Generator 5kW
    owning_organization_id: org-a
`

func TestLoadSeed(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o600))

	s := NewStore()
	require.NoError(t, s.LoadSeed(path))

	orgID, err := s.Organizations.ResolveOrganization(ctx, "beth")
	require.NoError(t, err)
	assert.Equal(t, "org-b", orgID)

	org, err := s.Organizations.GetByID(ctx, "org-a")
	require.NoError(t, err)
	assert.Equal(t, "depot@north.example", org.ContactEmail)

	eq, err := s.Equipment.GetByID(ctx, "eq-1")
	require.NoError(t, err)
	assert.Equal(t, "org-a", eq.CurrentOrganizationID)
}

func TestApplySeed_Invalid(t *testing.T) {
	s := NewStore()
	assert.Error(t, s.ApplySeed([]byte("equipment:\n  - id: eq-1\n")))
	assert.Error(t, s.ApplySeed([]byte("organizations: [")))
	assert.Error(t, s.LoadSeed(filepath.Join(t.TempDir(), "missing.yaml")))
}

func TestLoadSeed_DevProfile(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.LoadSeed(filepath.Join("..", "..", "..", "config", "seed.dev.yaml")))

	orgID, err := s.Organizations.ResolveOrganization(context.Background(), "andre")
	require.NoError(t, err)
	assert.Equal(t, "org-north", orgID)
}
