package identity

// Envelope is the JSON body returned for a resolution attempt.
type Envelope struct {
	Success  bool              `json:"success"`
	Data     *Identity         `json:"data,omitempty"`
	ADLookup *bool             `json:"adLookup,omitempty"`
	Error    string            `json:"error,omitempty"`
	Message  string            `json:"message,omitempty"`
	MockData *FallbackIdentity `json:"mockData,omitempty"`
	Debug    *Debug            `json:"debug,omitempty"`
}

// Debug exposes the intermediate state of a resolution for troubleshooting.
// It never carries identity values beyond what data already holds.
type Debug struct {
	Probe              string     `json:"probe"`
	Ambiguous          bool       `json:"ambiguous"`
	Slot               string     `json:"slot,omitempty"`
	DirectoryAvailable bool       `json:"directoryAvailable"`
	DirectoryFound     bool       `json:"directoryFound"`
	Category           Category   `json:"category,omitempty"`
	Warnings           []Category `json:"warnings,omitempty"`
}

// NewEnvelope builds the response body. Failures always carry the fallback
// identity so the form can still be filled in by hand.
func NewEnvelope(res Resolution) Envelope {
	if !res.Succeeded() {
		err := res.Err
		if err == nil {
			err = errInternal("resolution produced no identity")
		}
		fb := Fallback()
		return Envelope{
			Error:    err.Code,
			Message:  err.Message,
			MockData: &fb,
		}
	}
	enriched := res.Identity.DirectoryEnriched
	return Envelope{
		Success:  true,
		Data:     res.Identity,
		ADLookup: &enriched,
	}
}

// NewDebugEnvelope is NewEnvelope plus the debug block.
func NewDebugEnvelope(res Resolution) Envelope {
	env := NewEnvelope(res)
	env.Debug = &Debug{
		Probe:              res.Probe.Outcome.String(),
		Ambiguous:          res.Probe.Ambiguous,
		Slot:               res.Probe.SlotLine,
		DirectoryAvailable: res.DirectoryAvailable,
		DirectoryFound:     res.DirectoryFound,
		Category:           res.Category(),
		Warnings:           res.Warnings,
	}
	return env
}
