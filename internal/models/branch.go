package models

type Branch struct {
	BranchID  string `json:"branch_id"`
	Name      string `json:"name"`
	HoursJSON string `json:"hours_json,omitempty"`
	Active    bool   `json:"active"`
}
