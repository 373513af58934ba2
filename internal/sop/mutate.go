package sop

// HeaderPatch replaces only the non-nil fields of the header.
type HeaderPatch struct {
	Title          *string `json:"title"`
	Designer       *string `json:"designer"`
	Date           *string `json:"date"`
	Version        *string `json:"version"`
	Model          *string `json:"model"`
	ProjectName    *string `json:"projectName"`
	ProjectManager *string `json:"pm"`
	ProductLine    *string `json:"productLine"`
}

// PartPatch replaces only the non-nil fields of a part row.
type PartPatch struct {
	PartNumber  *string `json:"partNumber"`
	PartName    *string `json:"partName"`
	Description *string `json:"partDescription"`
	Quantity    *string `json:"quantity"`
}

// StepPatch replaces only the provided fields of a step. Image and ClearImage
// are set by the image lifecycle, never decoded from client input.
type StepPatch struct {
	Description *string `json:"description"`
	Image       *Image  `json:"-"`
	ClearImage  bool    `json:"-"`
	Busy        *bool   `json:"-"`
}

func assign(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

// UpdateHeader merges p into the header.
func (d *Document) UpdateHeader(p HeaderPatch) {
	assign(&d.Title, p.Title)
	assign(&d.Designer, p.Designer)
	assign(&d.Date, p.Date)
	assign(&d.Version, p.Version)
	assign(&d.Model, p.Model)
	assign(&d.ProjectName, p.ProjectName)
	assign(&d.ProjectManager, p.ProjectManager)
	assign(&d.ProductLine, p.ProductLine)
}

func (d *Document) partIndex(id string) int {
	for i := range d.Parts {
		if d.Parts[i].ID == id {
			return i
		}
	}
	return -1
}

func (d *Document) stepIndex(id string) int {
	for i := range d.Steps {
		if d.Steps[i].ID == id {
			return i
		}
	}
	return -1
}

// AddPart appends an empty part row.
func (d *Document) AddPart() PartRow {
	p := NewPartRow()
	d.Parts = append(d.Parts, p)
	return p
}

// UpdatePart merges p into the row with the given id.
func (d *Document) UpdatePart(id string, p PartPatch) (PartRow, error) {
	i := d.partIndex(id)
	if i < 0 {
		return PartRow{}, ErrPartNotFound
	}
	row := &d.Parts[i]
	assign(&row.PartNumber, p.PartNumber)
	assign(&row.PartName, p.PartName)
	assign(&row.Description, p.Description)
	assign(&row.Quantity, p.Quantity)
	return *row, nil
}

// RemovePart deletes the row with the given id. Removing the only remaining
// row is a no-op and reports false.
func (d *Document) RemovePart(id string) (bool, error) {
	i := d.partIndex(id)
	if i < 0 {
		return false, ErrPartNotFound
	}
	if len(d.Parts) <= 1 {
		return false, nil
	}
	d.Parts = append(d.Parts[:i:i], d.Parts[i+1:]...)
	return true, nil
}

// ReplaceParts swaps in a whole bill of materials. Rows get fresh ids and
// the table keeps at least one row.
func (d *Document) ReplaceParts(rows []PartRow) []PartRow {
	d.Parts = make([]PartRow, 0, len(rows))
	for _, r := range rows {
		r.ID = NewID()
		d.Parts = append(d.Parts, r)
	}
	if len(d.Parts) == 0 {
		d.Parts = []PartRow{NewPartRow()}
	}
	return append([]PartRow(nil), d.Parts...)
}

// Part returns the row with the given id.
func (d *Document) Part(id string) (PartRow, bool) {
	i := d.partIndex(id)
	if i < 0 {
		return PartRow{}, false
	}
	return d.Parts[i], true
}

// AddStep appends an empty step.
func (d *Document) AddStep() Step {
	s := NewStep()
	d.Steps = append(d.Steps, s)
	return s
}

// Step returns a copy of the step with the given id.
func (d *Document) Step(id string) (Step, bool) {
	i := d.stepIndex(id)
	if i < 0 {
		return Step{}, false
	}
	s := d.Steps[i]
	if s.Image != nil {
		img := *s.Image
		s.Image = &img
	}
	return s, true
}

// UpdateStep merges p into the step with the given id and returns the result.
func (d *Document) UpdateStep(id string, p StepPatch) (Step, error) {
	i := d.stepIndex(id)
	if i < 0 {
		return Step{}, ErrStepNotFound
	}
	s := &d.Steps[i]
	assign(&s.Description, p.Description)
	switch {
	case p.ClearImage:
		s.Image = nil
	case p.Image != nil:
		img := *p.Image
		s.Image = &img
	}
	if p.Busy != nil {
		s.Busy = *p.Busy
	}
	out, _ := d.Step(id)
	return out, nil
}

// DeleteStep removes the step with the given id and returns it.
func (d *Document) DeleteStep(id string) (Step, error) {
	i := d.stepIndex(id)
	if i < 0 {
		return Step{}, ErrStepNotFound
	}
	removed := d.Steps[i]
	d.Steps = append(d.Steps[:i:i], d.Steps[i+1:]...)
	return removed, nil
}
