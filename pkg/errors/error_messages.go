package errors

// ErrorMessages holds the user-facing message for each error code.
var ErrorMessages = map[int]string{
	ErrMissingFileParam:  "File path is required.",
	ErrInvalidSourcePath: "The requested file path is not inside the media library.",
	ErrInvalidConfig:     "The configuration is invalid.",
	ErrUnknownEncoder:    "Unknown encoder. Use libx264, h264_qsv or h264_videotoolbox.",
	ErrInvalidSourceURL:  "The source URL could not be parsed.",

	ErrSourceNotFound:     "Source file not found.",
	ErrRenditionNotCached: "File not found. Please play the video first to generate HLS.",

	ErrProbeFailed: "ffprobe could not read the media file.",
	ErrProbeParse:  "ffprobe returned output that could not be parsed.",

	ErrEncoderStart:  "The encoder could not be started.",
	ErrEncoderExit:   "The encoder exited with an error.",
	ErrMasterTimeout: "The stream is still being prepared. Try again shortly.",
	ErrJobCancelled:  "The encode was cancelled before the stream was ready.",

	ErrPlaylistWrite:     "A playlist could not be written.",
	ErrPlaylistRead:      "A playlist could not be read.",
	ErrPlaylistMalformed: "A playlist is malformed.",

	ErrRemuxFailed:  "Error during download.",
	ErrRemuxPrepare: "Error preparing download.",

	ErrRenditionLocked: "This rendition is being written by another process.",

	ErrDownloadRequest: "The remote source could not be requested.",
	ErrDownloadStatus:  "The remote source answered with an unexpected status.",
	ErrDownloadWrite:   "The remote source could not be saved.",

	ErrCacheDirCreate: "The cache directory could not be created.",
	ErrSourceDelete:   "The source file could not be removed after encoding.",
	ErrLockFile:       "The rendition lock could not be acquired.",
}

// GetErrorMessage returns the standard message for an error code.
func GetErrorMessage(code int) string {
	if msg, ok := ErrorMessages[code]; ok {
		return msg
	}
	return "Unknown error."
}
