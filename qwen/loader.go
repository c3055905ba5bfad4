package qwen

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// LoadOptions configures the Unified Loader (spec.md §2/§4). ModelDir is the
// only required field; everything else has a corpus-grounded default.
type LoadOptions struct {
	// ModelDir is the directory holding the compiled ONNX components, and
	// (optionally) a model_config.json, tokenizer.json, config.json and
	// generation_config.json alongside them.
	ModelDir string

	// ConfigPath overrides where the declarative ModelConfig is read from.
	// Defaults to <ModelDir>/model_config.json if that file exists.
	ConfigPath string

	// TokenizerPath overrides where tokenizer.json is read from. Defaults
	// to <ModelDir>/tokenizer.json.
	TokenizerPath string

	// SharedLibrarySearchDirs are searched for the ONNX Runtime shared
	// library, in addition to ModelDir itself and any ONNXRUNTIME_HOME
	// environment default (see loadEnvDefaults).
	SharedLibrarySearchDirs []string

	// Log receives structured progress from every loader and runtime
	// component. Defaults to logrus.StandardLogger().
	Log logrus.FieldLogger
}

// Load is the Unified Loader (spec.md §2, §4, §6): given a model directory,
// it resolves the ONNX Runtime shared library, obtains a ModelConfig
// (declarative if model_config.json exists, generative otherwise), loads
// every required component handle, loads a tokenizer, and returns a fully
// wired Runner. This is the smallest public surface a caller needs to start
// generating text.
func Load(opts LoadOptions) (*Runner, error) {
	if opts.ModelDir == "" {
		return nil, newErr(KindConfig, "model directory not set")
	}
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	loadEnvDefaults(opts.ModelDir, log)

	searchDirs := append([]string{opts.ModelDir}, opts.SharedLibrarySearchDirs...)
	if home := os.Getenv("ONNXRUNTIME_HOME"); home != "" {
		searchDirs = append(searchDirs, home)
	}
	if _, err := ResolveSharedLibrary(searchDirs...); err != nil {
		return nil, err
	}

	cfg, err := resolveModelConfig(opts, log)
	if err != nil {
		return nil, err
	}

	embeddings, err := loadRole(cfg, RoleEmbeddings, log)
	if err != nil {
		return nil, err
	}
	ffnPrefill, err := loadRole(cfg, RoleFFNPrefill, log)
	if err != nil {
		return nil, err
	}
	lmHead, err := loadRole(cfg, RoleLMHead, log)
	if err != nil {
		return nil, err
	}

	var ffnInfer predictor
	if cfg.FFNExecution == FFNExecutionSplit {
		h, err := loadRole(cfg, RoleFFNInfer, log)
		if err != nil {
			return nil, err
		}
		ffnInfer = h
	}

	tokenizerPath := opts.TokenizerPath
	if tokenizerPath == "" {
		tokenizerPath = filepath.Join(opts.ModelDir, "tokenizer.json")
	}
	tok, err := LoadSugarmeTokenizer(tokenizerPath)
	if err != nil {
		return nil, err
	}

	log.WithField("model_dir", opts.ModelDir).Info("model loaded")
	return NewRunner(cfg, embeddings, ffnPrefill, ffnInfer, lmHead, tok, log), nil
}

// resolveModelConfig picks declarative vs. generative mode per spec.md
// §4.4: a model_config.json on disk wins over re-discovering shapes from
// the artifacts every load.
func resolveModelConfig(opts LoadOptions, log logrus.FieldLogger) (*ModelConfig, error) {
	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = filepath.Join(opts.ModelDir, "model_config.json")
	}
	if fileExists(configPath) {
		return LoadModelConfig(configPath)
	}
	log.WithField("model_dir", opts.ModelDir).Info("model_config.json not found, discovering components")
	return DiscoverModelConfig(opts.ModelDir, log)
}

func loadRole(cfg *ModelConfig, role Role, log logrus.FieldLogger) (*ComponentHandle, error) {
	cc, ok := cfg.Components[role]
	if !ok {
		return nil, newErr(KindConfig, "model config has no component for required role %q", role)
	}
	return LoadComponentHandle(role, cc, log)
}

// loadEnvDefaults loads a .env file from modelDir (if present) the way the
// teacher's install step reads ONNX Runtime defaults, so ONNXRUNTIME_HOME /
// ONNXRUNTIME_SHARED_LIBRARY_PATH / QWEN_LOG_LEVEL can be set once per model
// checkout instead of exported by every caller.
func loadEnvDefaults(modelDir string, log logrus.FieldLogger) {
	envPath := filepath.Join(modelDir, ".env")
	if !fileExists(envPath) {
		return
	}
	if err := godotenv.Load(envPath); err != nil {
		log.WithError(err).WithField("path", envPath).Warn("failed to load .env defaults")
		return
	}
	if level := os.Getenv("QWEN_LOG_LEVEL"); level != "" {
		if parsed, err := logrus.ParseLevel(level); err == nil {
			if std, ok := log.(*logrus.Logger); ok {
				std.SetLevel(parsed)
			} else {
				logrus.SetLevel(parsed)
			}
		}
	}
}
