package operations

// Operation names the kind of run a Progress belongs to.
type Operation string

const (
	OpBackup  Operation = "backup"
	OpRestore Operation = "restore"
)

// Stage is one step of a backup or restore run.
type Stage string

const (
	StageIdle              Stage = "idle"
	StageArchiving         Stage = "archiving"
	StageTransforming      Stage = "transforming"
	StageCloudUploading    Stage = "cloud_uploading"
	StageRecordingMetadata Stage = "recording_metadata"
	StageApplyingRetention Stage = "applying_retention"
	StageVerifying         Stage = "verifying"
	StagePreparing         Stage = "preparing_workspace"
	StageIntegrityChecking Stage = "integrity_checking"
	StageReplacing         Stage = "replacing"
	StageCleaningUp        Stage = "cleaning_up"
	StageComplete          Stage = "complete"
	StageFailed            Stage = "failed"
)

type Progress struct {
	Operation Operation
	Stage     Stage
	Percent   int
	Message   string
}

// Completion is emitted once per run. Path is the artifact produced by a
// backup or consumed by a restore.
type Completion struct {
	Operation Operation
	Path      string
	Success   bool
	Err       error
}

type (
	ProgressFunc   func(Progress)
	CompletionFunc func(Completion)
)

func (e *Engine) emit(op Operation, stage Stage, percent int, msg string) {
	if e.progress != nil {
		e.progress(Progress{Operation: op, Stage: stage, Percent: percent, Message: msg})
	}
}

func (e *Engine) complete(op Operation, path string, err error) {
	if e.completion != nil {
		e.completion(Completion{Operation: op, Path: path, Success: err == nil, Err: err})
	}
}
