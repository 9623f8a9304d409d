package payment

// DispatchKind tells the presentation layer how to hand the client over to
// the paywall.
type DispatchKind string

const (
	// DispatchRedirect sends the client to Location (GET and REST flows).
	DispatchRedirect DispatchKind = "redirect"
	// DispatchForm has the client submit Fields to Action as a POST form.
	DispatchForm DispatchKind = "form"
)

// Dispatch is the outcome of creating a payment: either a redirect target or
// the data for an auto-submitting paywall form.
type Dispatch struct {
	Kind     DispatchKind      `json:"kind"`
	Location string            `json:"location,omitempty"`
	Action   string            `json:"action,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
}

func redirectTo(location string) *Dispatch {
	return &Dispatch{Kind: DispatchRedirect, Location: location}
}

func formTo(action string, fields map[string]string) *Dispatch {
	return &Dispatch{Kind: DispatchForm, Action: action, Fields: fields}
}
