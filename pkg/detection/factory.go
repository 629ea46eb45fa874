package detection

import (
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"

	"github.com/teslashibe/go-ptzscan/internal/httpc"
	"github.com/teslashibe/go-ptzscan/internal/log"
)

// Kind identifies a detector backend.
type Kind string

// Supported backends.
const (
	KindYOLO     Kind = "yolo"
	KindFlorence Kind = "florence"
	KindGemini   Kind = "gemini"
)

var modelPatterns = []struct {
	kind Kind
	re   *regexp.Regexp
}{
	{KindYOLO, regexp.MustCompile(`^(?:yolov(?:8|9|10)|yolo11)[nsmlex]$`)},
	{KindFlorence, regexp.MustCompile(`(?i)^florence-(base|large)$`)},
	{KindGemini, regexp.MustCompile(`^gemini-[a-z0-9.\-]+$`)},
}

// ParseModel maps a model name such as "yolov8n", "Florence-base" or
// "gemini-2.0-flash" to its backend.
func ParseModel(name string) (Kind, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, p := range modelPatterns {
		if p.re.MatchString(n) {
			return p.kind, nil
		}
	}
	return "", fmt.Errorf("%w: %q (want yolov8-10/yolo11 [nsmlex], Florence-base|large or gemini-*)", ErrUnknownModel, name)
}

// Config selects and configures a backend.
type Config struct {
	// Model is the model name, see ParseModel.
	Model string

	// ModelDir holds <model>.onnx files for YOLO.
	ModelDir string

	// GroundingURL is the Florence grounding service base URL.
	GroundingURL string

	// APIKey is the Gemini API key.
	APIKey string

	// PromptContext prefixes hosted grounding prompts,
	// e.g. "In this outdoor nature scene".
	PromptContext string

	// HTTPClient is used by remote backends. Defaults to httpc.Client.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// ModelName is the normalized model name, e.g. "yolov8n".
func (c Config) ModelName() string {
	return strings.ToLower(strings.TrimSpace(c.Model))
}

// Builder constructs an in-process backend from cfg.
type Builder func(cfg Config) (Detector, error)

var (
	buildersMu sync.RWMutex
	builders   = map[Kind]Builder{}
)

// Register installs the builder for kind. Backends that link native code
// call it from init, so a binary only carries the ones it imports:
//
//	import _ "github.com/teslashibe/go-ptzscan/pkg/detection/yolo"
func Register(kind Kind, b Builder) {
	buildersMu.Lock()
	defer buildersMu.Unlock()
	builders[kind] = b
}

func builder(kind Kind) (Builder, bool) {
	buildersMu.RLock()
	defer buildersMu.RUnlock()
	b, ok := builders[kind]
	return b, ok
}

// DefaultConfig returns defaults for the Florence backend.
func DefaultConfig() Config {
	return Config{
		Model:         "Florence-base",
		ModelDir:      "models",
		GroundingURL:  "http://localhost:8100",
		PromptContext: "In this outdoor nature scene",
	}
}

// New builds the detector named by cfg.Model. An error here is fatal for the
// scanner: it must not run without a working detector.
func New(cfg Config) (Detector, error) {
	kind, err := ParseModel(cfg.Model)
	if err != nil {
		return nil, err
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = httpc.Client
	}
	if cfg.Logger == nil {
		cfg.Logger = log.With("component", "detector", "model", cfg.Model)
	}

	name := cfg.ModelName()
	switch kind {
	case KindFlorence:
		size := strings.TrimPrefix(name, "florence-")
		return NewFlorence(cfg.GroundingURL, size, cfg.HTTPClient, cfg.Logger)
	case KindGemini:
		return NewGemini(cfg.APIKey, name, cfg.PromptContext, cfg.HTTPClient, cfg.Logger)
	}
	if b, ok := builder(kind); ok {
		return b(cfg)
	}
	return nil, fmt.Errorf("%w: %s backend for %q is not linked in", ErrBackendUnavailable, kind, cfg.Model)
}
