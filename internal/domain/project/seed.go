package project

// SeedProjects returns the starter project catalogue.
func SeedProjects() []Project {
	return []Project{
		{
			ID:           "south-mall",
			Name:         "South Mall New World",
			Status:       "In Progress",
			LastUpdated:  "2025-12-15",
			Location:     "Manurewa, Auckland",
			Image:        "https://images.unsplash.com/photo-1578575437130-527eed3abbec?auto=format&fit=crop&q=80&w=2070",
			Summary:      "Main refurbishment of the South Mall New World including new bakery fit-out and seismic strengthening.",
			Focus:        "Internal fit-out and bakery flooring.",
			Coordination: "Public access to mall entrance to be maintained at all times.",
		},
		{ID: "retail-facilities", Name: "Retail Facilities Programme", Status: "In Progress", LastUpdated: "2025-12-10"},
		{ID: "civil-drainage", Name: "Civil Drainage Remediation", Status: "Planning", LastUpdated: "2025-12-01"},
		{ID: "planned-maintenance", Name: "Planned Maintenance – Auckland", Status: "Ongoing", LastUpdated: "2025-12-12"},
		{ID: "emergency-works", Name: "Emergency Works Programme", Status: "On Hold", LastUpdated: "2025-11-20"},
	}
}
