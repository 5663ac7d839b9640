package submission

// State is the position of a submission in the pipeline
type State string

const (
	StateIdle              State = "Idle"
	StateDetecting         State = "Detecting"
	StateDetectionsEmpty   State = "DetectionsEmpty"
	StateDetectionsPresent State = "DetectionsPresent"
	StateAnnotating        State = "Annotating"
	// StateAnnotated holds the rendered artifact until the user asks to save
	StateAnnotated          State = "Annotated"
	StateResolvingLocation  State = "ResolvingLocation"
	StateRejectedNoLocation State = "RejectedNoLocation"
	StateUploading          State = "Uploading"
	StateAllocating         State = "Allocating"
	StatePersisting         State = "Persisting"
	StateSaved              State = "Saved"
	StateFailed             State = "Failed"
)

// saving reports whether a save is in flight
func (s State) saving() bool {
	switch s {
	case StateResolvingLocation, StateUploading, StateAllocating, StatePersisting:
		return true
	}
	return false
}

// Terminal reports whether the state ends a save attempt
func (s State) Terminal() bool {
	return s == StateSaved || s == StateFailed || s == StateRejectedNoLocation
}
