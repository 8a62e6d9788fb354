package constants

// Step is one state of the import workflow. The values are sent verbatim on the progress stream.
type Step string

const (
	StepInit               Step = "INIT"
	StepSourceAcquisition  Step = "SOURCE_ACQUISITION"
	StepAIExtraction       Step = "AI_EXTRACTION"
	StepLocationResolution Step = "LOCATION_RESOLUTION"
	StepMediaProcessing    Step = "MEDIA_PROCESSING"
	StepPersisting         Step = "PERSISTING"
	StepDone               Step = "DONE"
	StepError              Step = "ERROR"
)

// RunStatus is the canonical status for rows in import_runs.
type RunStatus string

// Stable values (store these exact strings in DB).
const (
	RunStatusQueued    RunStatus = "QUEUED"
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusSucceeded RunStatus = "SUCCEEDED"
	RunStatusFailed    RunStatus = "FAILED"
	RunStatusAbandoned RunStatus = "ABANDONED" // consumer went away before persisting
)

// Property lifecycle values written on every imported draft.
const (
	PropertyStatusActive   = "ACTIVE"
	PublicationStatusDraft = "DRAFT"
	MediaKindImage         = "IMAGE"
)
