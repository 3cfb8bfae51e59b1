package errors

// Error codes, grouped by ErrorType.
const (
	// ValidationError (1000-1099)
	ErrMissingFileParam  = 1000
	ErrInvalidSourcePath = 1001
	ErrInvalidConfig     = 1002
	ErrUnknownEncoder    = 1003
	ErrInvalidSourceURL  = 1004

	// NotFoundError (1100-1199)
	ErrSourceNotFound     = 1100
	ErrRenditionNotCached = 1101

	// ProbeError (1200-1299)
	ErrProbeFailed = 1200
	ErrProbeParse  = 1201

	// TranscodingError (1300-1399)
	ErrEncoderStart  = 1300
	ErrEncoderExit   = 1301
	ErrMasterTimeout = 1302
	ErrJobCancelled  = 1303

	// HLSError (1400-1499)
	ErrPlaylistWrite     = 1400
	ErrPlaylistRead      = 1401
	ErrPlaylistMalformed = 1402

	// PackagingError (1500-1599)
	ErrRemuxFailed  = 1500
	ErrRemuxPrepare = 1501

	// BusyError (1600-1699)
	ErrRenditionLocked = 1600

	// DownloadError (1700-1799)
	ErrDownloadRequest = 1700
	ErrDownloadStatus  = 1701
	ErrDownloadWrite   = 1702

	// SystemError (1800-1899)
	ErrCacheDirCreate = 1800
	ErrSourceDelete   = 1801
	ErrLockFile       = 1802
)
