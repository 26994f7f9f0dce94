package project

// DateLayout is the layout of LastUpdated.
const DateLayout = "2006-01-02"

// Project is the descriptive record of one construction project. It changes
// rarely and only through UpdateDetails.
type Project struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Status       string `json:"status"`
	Location     string `json:"location,omitempty"`
	Summary      string `json:"summary,omitempty"`
	Focus        string `json:"focus,omitempty"`
	Coordination string `json:"coordination,omitempty"`
	Image        string `json:"image,omitempty"`
	LastUpdated  string `json:"lastUpdated"`
}

// Details holds the editable project fields. Nil fields are left unchanged.
type Details struct {
	Name         *string `json:"name,omitempty"`
	Status       *string `json:"status,omitempty"`
	Location     *string `json:"location,omitempty"`
	Summary      *string `json:"summary,omitempty"`
	Focus        *string `json:"focus,omitempty"`
	Coordination *string `json:"coordination,omitempty"`
	Image        *string `json:"image,omitempty"`
}

// Empty reports whether d changes nothing.
func (d Details) Empty() bool {
	return d.Name == nil && d.Status == nil && d.Location == nil && d.Summary == nil &&
		d.Focus == nil && d.Coordination == nil && d.Image == nil
}

// Apply copies the set fields of d onto p.
func (d Details) Apply(p *Project) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&p.Name, d.Name)
	set(&p.Status, d.Status)
	set(&p.Location, d.Location)
	set(&p.Summary, d.Summary)
	set(&p.Focus, d.Focus)
	set(&p.Coordination, d.Coordination)
	set(&p.Image, d.Image)
}
