package operations

import (
	"errors"

	"github.com/kebairia/markabak/internal/archive"
	"github.com/kebairia/markabak/internal/cloud"
	"github.com/kebairia/markabak/internal/database"
	"github.com/kebairia/markabak/internal/integrity"
	"github.com/kebairia/markabak/internal/replace"
	"github.com/kebairia/markabak/internal/retention"
	"github.com/kebairia/markabak/internal/transform"
)

// Errors returned by Engine operations. Component errors are re-exported
// so callers only need this package for errors.Is checks.
var (
	ErrArchive              = archive.ErrArchive
	ErrProcessing           = transform.ErrProcessing
	ErrIntegrity            = integrity.ErrIntegrity
	ErrReplace              = replace.ErrReplace
	ErrRollbackFailed       = replace.ErrRollbackFailed
	ErrCloudTransfer        = cloud.ErrCloudTransfer
	ErrRetention            = retention.ErrRetention
	ErrRecordBackup         = database.ErrRecordFailed
	ErrEncryptionKeyMissing = transform.ErrKeyRequired

	ErrBusy             = errors.New("backup/restore already in progress")
	ErrArtifactNotFound = errors.New("backup artifact not found")
)
