package model

const (
	TabCustomers    = "Customers"
	TabDentists     = "Dentists"
	TabTreatments   = "Treatments"
	TabAppointments = "Appointments"

	// TabUsers holds identity records and is never exposed through the data API.
	TabUsers = "Users"
)

// EntityTabs lists the tabs served by the data API by default.
var EntityTabs = []string{TabCustomers, TabDentists, TabTreatments, TabAppointments}
