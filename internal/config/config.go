package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backends understood by the store package.
const (
	BackendCSV      = "csv"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

type Config struct {
	Gallery     GalleryConfig     `yaml:"gallery"`
	Store       StoreConfig       `yaml:"store"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Capture     CaptureConfig     `yaml:"capture"`
	Worker      WorkerConfig      `yaml:"worker"`
}

type GalleryConfig struct {
	Dir string `yaml:"dir"` // defaults to known_faces
}

type StoreConfig struct {
	Backend     string `yaml:"backend"`      // csv, postgres or sqlite
	RecordsDir  string `yaml:"records_dir"`  // CSV tables, one per date
	DatabaseURL string `yaml:"database_url"` // PostgreSQL connection string
	SQLitePath  string `yaml:"sqlite_path"`
}

type RecognitionConfig struct {
	Threshold      float64       `yaml:"threshold"`       // euclidean acceptance distance, lower is stricter
	Cooldown       time.Duration `yaml:"cooldown"`        // minimum gap between two marks of the same person
	Scale          float64       `yaml:"scale"`           // detection downsample factor, 1 disables
	ProcessEvery   int           `yaml:"process_every"`   // run detection on every Nth frame
	CaptureRetries int           `yaml:"capture_retries"` // consecutive failed reads tolerated, 0 is fail-fast
	PreviewPath    string        `yaml:"preview_path"`    // annotated frame for a human reviewer, empty disables
	SnapshotDir    string        `yaml:"snapshot_dir"`    // numbered annotated frames, empty disables
}

type CaptureConfig struct {
	Device string `yaml:"device"`
	Format string `yaml:"format"`
	Size   string `yaml:"size"`
	FPS    int    `yaml:"fps"`
}

type WorkerConfig struct {
	Python  string        `yaml:"python"`
	Script  string        `yaml:"script"`
	Timeout time.Duration `yaml:"timeout"`
}

// envInt reads an environment variable and parses it as a non-negative integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a positive float, falling back to defaultVal.
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

// envDuration reads a Go duration string ("10s", "500ms"), falling back to defaultVal.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// databaseURL prefers DATABASE_URL, then assembles one from the POSTGRES_* variables.
func databaseURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}
	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		user := os.Getenv("POSTGRES_USER")
		pass := os.Getenv("POSTGRES_PASSWORD")
		name := os.Getenv("POSTGRES_DB")
		port := envString("POSTGRES_PORT", "5432")
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
	}
	return "postgres://localhost:5432/attendant"
}

// Load builds the configuration from the environment.
func Load() *Config {
	return &Config{
		Gallery: GalleryConfig{
			Dir: envString("ATTENDANT_GALLERY_DIR", "known_faces"),
		},
		Store: StoreConfig{
			Backend:     envString("ATTENDANT_STORE", BackendCSV),
			RecordsDir:  envString("ATTENDANT_RECORDS_DIR", "attendance_records"),
			DatabaseURL: databaseURL(),
			SQLitePath:  envString("ATTENDANT_SQLITE_PATH", "attendance_records/attendance.db"),
		},
		Recognition: RecognitionConfig{
			Threshold:      envFloat("ATTENDANT_THRESHOLD", 0.6),
			Cooldown:       envDuration("ATTENDANT_COOLDOWN", 10*time.Second),
			Scale:          envFloat("ATTENDANT_SCALE", 0.25),
			ProcessEvery:   envInt("ATTENDANT_PROCESS_EVERY", 2),
			CaptureRetries: envInt("ATTENDANT_CAPTURE_RETRIES", 0),
			PreviewPath:    envString("ATTENDANT_PREVIEW_PATH", "preview.jpg"),
			SnapshotDir:    os.Getenv("ATTENDANT_SNAPSHOT_DIR"),
		},
		Capture: CaptureConfig{
			Device: envString("ATTENDANT_DEVICE", "/dev/video0"),
			Format: envString("ATTENDANT_CAPTURE_FORMAT", "v4l2"),
			Size:   os.Getenv("ATTENDANT_CAPTURE_SIZE"),
			FPS:    envInt("ATTENDANT_CAPTURE_FPS", 0),
		},
		Worker: WorkerConfig{
			Python:  envString("ATTENDANT_PYTHON", "python3"),
			Script:  envString("ATTENDANT_WORKER_SCRIPT", "python/worker.py"),
			Timeout: envDuration("ATTENDANT_WORKER_TIMEOUT", 30*time.Second),
		},
	}
}

// ApplyFile overlays the YAML file at path on top of c. Keys absent from the
// file keep their current values. A missing file is only an error when required.
func (c *Config) ApplyFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// Validate rejects values the recognition pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendCSV, BackendPostgres, BackendSQLite:
	default:
		return fmt.Errorf("unknown store backend %q (use csv, postgres or sqlite)", c.Store.Backend)
	}
	r := c.Recognition
	if r.Threshold <= 0 {
		return fmt.Errorf("threshold must be > 0, got %f", r.Threshold)
	}
	if r.Cooldown < 0 {
		return fmt.Errorf("cooldown must be >= 0, got %s", r.Cooldown)
	}
	if r.Scale <= 0 || r.Scale > 1 {
		return fmt.Errorf("scale must be in (0, 1], got %f", r.Scale)
	}
	if r.ProcessEvery < 1 {
		return fmt.Errorf("process-every must be >= 1, got %d", r.ProcessEvery)
	}
	if r.CaptureRetries < 0 {
		return fmt.Errorf("capture-retries must be >= 0, got %d", r.CaptureRetries)
	}
	return nil
}
