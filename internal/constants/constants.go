// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Ledger format constants
const (
	// DateLayout is the ISO 8601 calendar date used as the ledger partition key
	DateLayout = "2006-01-02"

	// TimeLayout is the time-of-day format stored for check-in and check-out
	TimeLayout = "15:04:05"
)

// Recognition constants
const (
	// UnknownPerson is the name reported for a face without a confident gallery match
	UnknownPerson = "Unknown"

	// DefaultDistanceThreshold is the default maximum cosine distance for a face match.
	// Lower values = stricter matching
	DefaultDistanceThreshold = 0.5

	// DefaultFrameMaxSize is the maximum dimension (width or height) of a frame sent for recognition
	DefaultFrameMaxSize = 640

	// DefaultCameraIntervalMs is the delay between snapshot camera polls in milliseconds
	DefaultCameraIntervalMs = 100
)

// Report constants
const (
	// DurationNA is rendered when a check-in or check-out time is missing
	DurationNA = "N/A"

	// DurationError is rendered when times cannot be parsed or checkout precedes checkin
	DurationError = "Error"
)

// Default file locations
const (
	DefaultAttendanceFile = "data/attendance.json"
	DefaultUserInfoFile   = "data/user_info.json"
	DefaultEncodingsFile  = "data/face_encodings.gob"
	DefaultGalleryDir     = "photo"
	DefaultReportsDir     = "reports"
)

// Event channel constants
const (
	// EventChannelBuffer is the buffer size for event channels
	EventChannelBuffer = 100
)

// Background job kinds
const (
	// JobKindCapture is a camera capture session; only one runs at a time
	JobKindCapture = "capture"

	// JobKindGalleryReload re-embeds every gallery photo and rebuilds the index
	JobKindGalleryReload = "gallery-reload"

	// JobRetentionMinutes is how long a finished job stays queryable
	JobRetentionMinutes = 60

	// MaxFinishedJobs caps how many finished jobs are kept, newest first
	MaxFinishedJobs = 100
)

// Web constants
const (
	// MaxUploadSize is the maximum enrollment photo upload size
	MaxUploadSize = 20 << 20

	// DateParamToday selects the current date in report URLs
	DateParamToday = "today"
)
