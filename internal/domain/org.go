package domain

type Organization struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ContactEmail string `json:"contact_email"`
	ContactName  string `json:"contact_name"`
}
