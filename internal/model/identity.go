package model

// Identity is the claim produced by a successful login and carried by the session.
type Identity struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Dataset string `json:"dataset"` // spreadsheet the user's CRUD operations are scoped to
	Avatar  string `json:"image,omitempty"`
	Address string `json:"address,omitempty"`
	Role    string `json:"role,omitempty"`
}

// UserRecord is one row of the reserved Users tab.
// Columns: A id, B password hash, C name, D dataset, E image, F address, G role.
type UserRecord struct {
	ID           string
	PasswordHash string
	Name         string
	Dataset      string
	Avatar       string
	Address      string
	Role         string
}

// UserRecordFromRow maps a Users row onto a record; missing trailing cells are empty.
func UserRecordFromRow(r Row) UserRecord {
	return UserRecord{
		ID:           r.Cell(0),
		PasswordHash: r.Cell(1),
		Name:         r.Cell(2),
		Dataset:      r.Cell(3),
		Avatar:       r.Cell(4),
		Address:      r.Cell(5),
		Role:         r.Cell(6),
	}
}

// Row returns the record in Users tab column order.
func (u UserRecord) Row() Row {
	return Row{u.ID, u.PasswordHash, u.Name, u.Dataset, u.Avatar, u.Address, u.Role}
}

// Identity returns the session claim for the record. Name falls back to the login.
func (u UserRecord) Identity() Identity {
	name := u.Name
	if name == "" {
		name = u.ID
	}
	return Identity{
		ID:      u.ID,
		Name:    name,
		Dataset: u.Dataset,
		Avatar:  u.Avatar,
		Address: u.Address,
		Role:    u.Role,
	}
}
