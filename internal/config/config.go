package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"gopkg.in/yaml.v3"
)

//go:embed labels.yaml
var labelsYAML []byte

type Config struct {
	Storage     StorageConfig
	Database    DatabaseConfig
	Gallery     GalleryConfig
	Embedding   EmbeddingConfig
	Recognition RecognitionConfig
	Camera      CameraConfig
	Reports     ReportsConfig
	Web         WebConfig
	Labels      Labels
}

type StorageConfig struct {
	AttendanceFile string // JSON ledger used when no DATABASE_URL is set
	UserInfoFile   string // JSON user registry
}

type DatabaseConfig struct {
	URL          string // postgres://... or mysql://... (optional, JSON file store when empty)
	MaxOpenConns int    // Maximum open connections (default 10)
	MaxIdleConns int    // Maximum idle connections (default 2)
}

type GalleryConfig struct {
	Dir           string // photo/<person>/*.jpg
	EncodingsFile string // gob cache of computed face embeddings
}

type EmbeddingConfig struct {
	URL string // defaults to http://localhost:8000
}

type RecognitionConfig struct {
	DistanceThreshold float64
	FrameMaxSize      int
}

type CameraConfig struct {
	URL        string // snapshot endpoint returning a single JPEG per GET
	IntervalMs int
}

type ReportsConfig struct {
	Dir string
}

type WebConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string // extra CORS origins; localhost is always allowed
}

// Labels holds report wording loaded from the embedded labels.yaml.
type Labels struct {
	Report ReportLabels `yaml:"report"`
	Export ExportLabels `yaml:"export"`
}

type ReportLabels struct {
	Title          string `yaml:"title"`
	Total          string `yaml:"total"`
	Present        string `yaml:"present"`
	Absent         string `yaml:"absent"`
	People         string `yaml:"people"`
	PresentSection string `yaml:"present_section"`
	AbsentSection  string `yaml:"absent_section"`
	None           string `yaml:"none"`
	CheckIn        string `yaml:"checkin"`
	CheckOut       string `yaml:"checkout"`
	Duration       string `yaml:"duration"`
}

type ExportLabels struct {
	SheetTitle    string   `yaml:"sheet_title"`
	FileName      string   `yaml:"file_name"`
	StatusPresent string   `yaml:"status_present"`
	StatusAbsent  string   `yaml:"status_absent"`
	Columns       []string `yaml:"columns"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a positive float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList reads a comma-separated environment variable, dropping empty items.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// DefaultLabels returns the labels from the embedded labels.yaml.
func DefaultLabels() Labels {
	var labels Labels
	if err := yaml.Unmarshal(labelsYAML, &labels); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded labels.yaml: " + err.Error())
	}
	return labels
}

func Load() *Config {
	return &Config{
		Storage: StorageConfig{
			AttendanceFile: envString("ATTENDANCE_FILE", constants.DefaultAttendanceFile),
			UserInfoFile:   envString("USER_INFO_FILE", constants.DefaultUserInfoFile),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 2),
		},
		Gallery: GalleryConfig{
			Dir:           envString("GALLERY_DIR", constants.DefaultGalleryDir),
			EncodingsFile: envString("ENCODINGS_FILE", constants.DefaultEncodingsFile),
		},
		Embedding: EmbeddingConfig{
			URL: os.Getenv("EMBEDDING_URL"),
		},
		Recognition: RecognitionConfig{
			DistanceThreshold: envFloat("FACE_DISTANCE_THRESHOLD", constants.DefaultDistanceThreshold),
			FrameMaxSize:      envInt("FRAME_MAX_SIZE", constants.DefaultFrameMaxSize),
		},
		Camera: CameraConfig{
			URL:        os.Getenv("CAMERA_URL"),
			IntervalMs: envInt("CAMERA_INTERVAL_MS", constants.DefaultCameraIntervalMs),
		},
		Reports: ReportsConfig{
			Dir: envString("REPORTS_DIR", constants.DefaultReportsDir),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 8080),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
		Labels: DefaultLabels(),
	}
}
