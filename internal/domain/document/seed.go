package document

// SeedTree is written to the store by the first client that finds no tree.
func SeedTree() Tree {
	return Tree{
		{
			ID:   "folder-1",
			Name: "Drawings",
			Items: []File{
				{ID: "f1-1", Name: "Drawing_A101_RevC.pdf", Type: "PDF", Author: "Consultant (Arch)", Date: "10 Dec 2025"},
				{ID: "f1-2", Name: "Drawing_S204_RevB.pdf", Type: "PDF", Author: "Consultant (Struct)", Date: "08 Dec 2025"},
				{ID: "f1-3", Name: "Layout_Plan_Ground.dwg", Type: "DWG", Author: "Consultant (Arch)", Date: "01 Dec 2025"},
			},
		},
		{
			ID:   "folder-2",
			Name: "RFIs & Technical Queries",
			Items: []File{
				{ID: "f2-1", Name: "RFI_012_BakeryFloorLevels.pdf", Type: "PDF", Author: "EMG (Christo)", Date: "12 Dec 2025"},
				{ID: "f2-2", Name: "TQ_004_SteelConnection.pdf", Type: "PDF", Author: "Contractor", Date: "05 Dec 2025"},
			},
		},
		{
			ID:   "folder-3",
			Name: "Reports & Inspections",
			Items: []File{
				{ID: "f3-1", Name: "Weekly_Site_Report_2025-12-08.pdf", Type: "PDF", Author: "EMG", Date: "08 Dec 2025"},
				{ID: "f3-2", Name: "Safety_Audit_Nov25.pdf", Type: "PDF", Author: "Safety Officer", Date: "30 Nov 2025"},
			},
		},
		{
			ID:   "folder-4",
			Name: "Site Instructions",
			Items: []File{
				{ID: "f4-1", Name: "SI_003_PaintSpecChange.pdf", Type: "PDF", Author: "Client", Date: "03 Dec 2025"},
			},
		},
	}
}
