package config

import (
	"os"
	"path/filepath"
)

// Default values.
const (
	DefaultChannel         = "saltyteemo"
	DefaultURLTemplate     = "https://twitch.tv/%s"
	DefaultPollInterval    = 1.0   // seconds
	DefaultCooldown        = 300.0 // seconds
	DefaultLanguage        = "eng"
	DefaultOCRAddr         = "localhost:50051"
	DefaultOCRTimeout      = 5.0
	DefaultMaxHashDistance = 2
	DefaultROIWidth        = 168
	DefaultROIHeight       = 64
	DefaultHTTPAddr        = ":8000"
	DefaultNtfyTimeout     = 10.0
	DefaultTitle           = "Bets are open"

	SourceStream = "stream"
	SourceScreen = "screen"

	CaptureThreaded = "threaded"
	CaptureOneshot  = "oneshot"

	BackendTesseract = "tesseract"
	BackendGRPC      = "grpc"
)

// DefaultQualities is the stream variant preference, best first.
var DefaultQualities = []string{"720p60", "480p"}

// Default returns a Config populated with defaults.
func Default() Config {
	return Config{
		Stream: Stream{
			Channel:     DefaultChannel,
			URLTemplate: DefaultURLTemplate,
			Qualities:   append([]string(nil), DefaultQualities...),
			Source:      SourceStream,
			CaptureMode: CaptureThreaded,
		},
		Poll: Poll{
			IntervalSeconds: DefaultPollInterval,
			CooldownSeconds: DefaultCooldown,
		},
		OCR: OCR{
			Backend:         BackendTesseract,
			Language:        DefaultLanguage,
			Addr:            DefaultOCRAddr,
			ListenAddr:      ":50051",
			TimeoutSeconds:  DefaultOCRTimeout,
			MaxHashDistance: DefaultMaxHashDistance,
			ROIWidth:        DefaultROIWidth,
			ROIHeight:       DefaultROIHeight,
		},
		Reconnect: Reconnect{
			MaxRetries:       5,
			BaseDelaySeconds: 1,
			MaxDelaySeconds:  30,
		},
		Notify: Notify{
			Desktop:            true,
			Beep:               true,
			NtfyTimeoutSeconds: DefaultNtfyTimeout,
			Title:              DefaultTitle,
		},
		Server: Server{
			HTTPAddr: DefaultHTTPAddr,
		},
		Logging: Logging{
			Format: "auto",
			Level:  "info",
		},
		LockDir: defaultLockDir(),
	}
}

func defaultLockDir() string {
	if dir, ok := os.LookupEnv("XDG_RUNTIME_DIR"); ok && dir != "" {
		return dir
	}
	return filepath.Join(os.TempDir(), "betwatch")
}
