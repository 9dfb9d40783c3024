package thing

// Description is the capability listing for a Thing, served by the HTTP
// gateway and shown by interactive clients. JSON only.
type Description struct {
	ID          string                         `json:"id"`
	Title       string                         `json:"title,omitempty"`
	Description string                         `json:"description,omitempty"`
	State       string                         `json:"state,omitempty"`
	States      []string                       `json:"states,omitempty"`
	Properties  map[string]PropertyDescription `json:"properties,omitempty"`
	Actions     map[string]ActionDescription   `json:"actions,omitempty"`
	Events      map[string]EventDescription    `json:"events,omitempty"`
}

// PropertyDescription describes one property in the capability listing.
type PropertyDescription struct {
	Description   string   `json:"description,omitempty"`
	ReadOnly      bool     `json:"readOnly,omitempty"`
	Computed      bool     `json:"computed,omitempty"`
	Min           any      `json:"min,omitempty"`
	Max           any      `json:"max,omitempty"`
	Unit          string   `json:"unit,omitempty"`
	AllowedStates []string `json:"allowedStates,omitempty"`
}

// ActionDescription describes one action in the capability listing.
type ActionDescription struct {
	Description   string   `json:"description,omitempty"`
	AllowedStates []string `json:"allowedStates,omitempty"`
}

// EventDescription describes one event in the capability listing.
type EventDescription struct {
	Description   string   `json:"description,omitempty"`
	MinIntervalMs int64    `json:"minIntervalMs,omitempty"`
	AllowedStates []string `json:"allowedStates,omitempty"`
}

// Describe builds the capability listing for the Thing.
func (t *Thing) Describe() *Description {
	t.mu.RLock()
	defer t.mu.RUnlock()

	d := &Description{
		ID:          t.id,
		Title:       t.title,
		Description: t.description,
		Properties:  make(map[string]PropertyDescription, len(t.properties)),
		Actions:     make(map[string]ActionDescription, len(t.actions)),
		Events:      make(map[string]EventDescription, len(t.events)),
	}

	if t.machine != nil {
		d.State = string(t.machine.Current())
		for _, s := range t.machine.States() {
			d.States = append(d.States, string(s))
		}
	}

	for name, p := range t.properties {
		meta := p.Metadata()
		d.Properties[name] = PropertyDescription{
			Description:   meta.Description,
			ReadOnly:      meta.ReadOnly,
			Computed:      p.Computed(),
			Min:           meta.Min,
			Max:           meta.Max,
			Unit:          meta.Unit,
			AllowedStates: stateNames(meta.AllowedStates),
		}
	}
	for name, a := range t.actions {
		meta := a.Metadata()
		d.Actions[name] = ActionDescription{
			Description:   meta.Description,
			AllowedStates: stateNames(meta.AllowedStates),
		}
	}
	for name, e := range t.events {
		meta := e.Metadata()
		d.Events[name] = EventDescription{
			Description:   meta.Description,
			MinIntervalMs: meta.MinInterval.Milliseconds(),
			AllowedStates: stateNames(meta.AllowedStates),
		}
	}

	return d
}

func stateNames(states []State) []string {
	if len(states) == 0 {
		return nil
	}
	names := make([]string, len(states))
	for i, s := range states {
		names[i] = string(s)
	}
	return names
}
