package domain

import "time"

// Equipment is the shared asset. CurrentOrganizationID is where the item
// physically is and is written only by the transfer lifecycle.
type Equipment struct {
	ID                    string    `json:"id"`
	Name                  string    `json:"name"`
	OwningOrganizationID  string    `json:"owning_organization_id"`
	CurrentOrganizationID string    `json:"current_organization_id"`
	UpdatedAt             time.Time `json:"updated_at"`
}
