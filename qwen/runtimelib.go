package qwen

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	onnx "github.com/yalue/onnxruntime_go"
)

var (
	initEnvOnce sync.Once
	initEnvErr  error
)

// initializeEnvironment calls onnx.InitializeEnvironment exactly once per
// process, mirroring the teacher's transformers/model.go (FromPretrained
// calls onnx.InitializeEnvironment(onnx.WithLogLevelWarning()) right after
// the shared library path is resolved). The teacher only ever loads one
// model per process; this engine's Load can run many times in one process
// (e.g. across tests), so repeat calls must be a no-op rather than erroring
// against an already-initialized environment.
func initializeEnvironment() error {
	initEnvOnce.Do(func() {
		initEnvErr = onnx.InitializeEnvironment(onnx.WithLogLevelWarning())
	})
	return initEnvErr
}

// sharedLibNamesFor lists the ONNX Runtime shared-library filenames the
// current platform might carry, adapted from the teacher's
// EnsureONNXRuntimeSharedLib (downloading a missing copy is an HTTP
// concern out of the core's scope per spec.md §1; locating one already
// installed on the host is not).
func sharedLibNamesFor(goos string) []string {
	switch goos {
	case "darwin":
		return []string{"libonnxruntime.dylib"}
	case "windows":
		return []string{"onnxruntime.dll"}
	default:
		return []string{"libonnxruntime.so"}
	}
}

// ResolveSharedLibrary finds the ONNX Runtime shared library to use,
// preferring an explicit ONNXRUNTIME_SHARED_LIBRARY_PATH override, then
// searching searchDirs, and configures onnx.SetSharedLibraryPath on the
// first match.
func ResolveSharedLibrary(searchDirs ...string) (string, error) {
	if path := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); path != "" {
		if fileExists(path) {
			onnx.SetSharedLibraryPath(path)
			if err := initializeEnvironment(); err != nil {
				return "", wrapErr(KindLoad, err, "initializing onnxruntime environment")
			}
			return path, nil
		}
		return "", newErr(KindLoad, "ONNXRUNTIME_SHARED_LIBRARY_PATH=%q does not exist", path)
	}

	names := sharedLibNamesFor(runtime.GOOS)
	for _, dir := range searchDirs {
		if path, ok := findExistingLib(dir, names); ok {
			onnx.SetSharedLibraryPath(path)
			if err := initializeEnvironment(); err != nil {
				return "", wrapErr(KindLoad, err, "initializing onnxruntime environment")
			}
			return path, nil
		}
	}
	return "", newErr(KindLoad, "onnxruntime shared library not found under %v; set ONNXRUNTIME_SHARED_LIBRARY_PATH", searchDirs)
}

func findExistingLib(root string, names []string) (string, bool) {
	var found string
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		base := filepath.Base(path)
		for _, name := range names {
			if base == name || strings.Contains(base, name) {
				found = path
				return errors.New("found")
			}
		}
		return nil
	})
	return found, found != ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
