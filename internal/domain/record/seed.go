package record

import "time"

// Seed records are shown while a collection is empty remotely. Their ids are
// the millisecond timestamps of their dates so they sort like real records.

func seedID(day int) int64 {
	return time.Date(2025, time.December, day, 0, 0, 0, 0, time.UTC).UnixMilli()
}

// SeedUpdates returns the starter updates.
func SeedUpdates() []Update {
	return []Update{
		{ID: seedID(14), Date: "14 Dec 2025", Author: "Sarah Jenkins (EMG)", Content: "Bakery flooring preparation complete. Epoxy coating scheduled for Tuesday.", Tag: "Progress"},
		{ID: seedID(10), Date: "10 Dec 2025", Author: "Mike Ross (EMG)", Content: "Seismic bracing in the main aisle has been signed off by the engineer.", Tag: "Compliance"},
		{ID: seedID(8), Date: "08 Dec 2025", Author: "Sarah Jenkins (EMG)", Content: "Hoardings moved to Zone 2. Public access path rerouted safely.", Tag: "Safety"},
	}
}

// SeedActions returns the starter actions.
func SeedActions() []Action {
	return []Action{
		{ID: 1, Task: "Approve final electrical layout for Cold Store", AssignedTo: "Consultant (Elec)", Status: ActionOpen, DueDate: "20 Dec 2025"},
		{ID: 2, Task: "Submit updated Health & Safety Plan", AssignedTo: "Contractor", Status: ActionClosed, DueDate: "10 Dec 2025"},
		{ID: 3, Task: "Review Zone C variation cost", AssignedTo: "EMG", Status: ActionOpen, DueDate: "18 Dec 2025"},
		{ID: 4, Task: "Confirm site access for crane lift", AssignedTo: "Contractor", Status: ActionOpen, DueDate: "16 Dec 2025"},
	}
}

// SeedQuestions returns the starter Q&A threads.
func SeedQuestions() []QuestionThread {
	return []QuestionThread{
		{
			ID:       seedID(12),
			Title:    "Clarification on Fire Door Specs",
			Category: "RFI",
			Status:   ThreadAnswered,
			Date:     "12 Dec 2025",
			Context:  "Regarding the fire doors in Corridor 3, are we sticking to the original spec or the alternative submitted last week?",
			Replies: []Reply{
				{Author: "David Chen (Architect)", Date: "13 Dec 2025", Content: "We have approved the alternative spec provided it meets the 60min FRR. Please proceed."},
			},
		},
		{
			ID:       seedID(14),
			Title:    "Loading Bay Height Restrictions",
			Category: "Access",
			Status:   ThreadOpen,
			Date:     "14 Dec 2025",
			Context:  "Can we confirm the max clearance for the temporary loading bay? Transport company asking.",
			Replies:  []Reply{},
		},
	}
}

// SeedPhotos returns the starter site photos.
func SeedPhotos() []Photo {
	const unsplash = "https://images.unsplash.com/"
	return []Photo{
		{ID: seedID(14), Src: unsplash + "photo-1578575437130-527eed3abbec?auto=format&fit=crop&q=80&w=2070", Date: "14 Dec 2025", Tag: "Exterior", Desc: "North Elevation completion"},
		{ID: seedID(12), Src: unsplash + "photo-1541888946425-d81bb19240f5?auto=format&fit=crop&q=80&w=2070", Date: "12 Dec 2025", Tag: "Site Works", Desc: "Excavation for Zone C"},
		{ID: seedID(10), Src: unsplash + "photo-1590644365607-1c5a38fc43e0?auto=format&fit=crop&q=80&w=2043", Date: "10 Dec 2025", Tag: "Interior", Desc: "Cold store panel installation"},
		{ID: seedID(8), Src: unsplash + "photo-1504307651254-35680f356dfd?auto=format&fit=crop&q=80&w=2070", Date: "08 Dec 2025", Tag: "Safety", Desc: "Site safety briefing area"},
		{ID: seedID(5), Src: unsplash + "photo-1531834685032-c34bf0d84c77?auto=format&fit=crop&q=80&w=1997", Date: "05 Dec 2025", Tag: "Structure", Desc: "Steel beams arrival"},
		{ID: seedID(1), Src: unsplash + "photo-1581094794329-c8112a89af12?auto=format&fit=crop&q=80&w=2000", Date: "01 Dec 2025", Tag: "Progress", Desc: "Foundation pouring"},
	}
}
