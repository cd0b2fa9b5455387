// Package inference provides the Model.predict facade: a uniform
// named-tensor-in, named-tensor-out call over the ONNX Runtime,
// hiding compute-unit selection from callers. Grounded on the session
// construction in ai/gigaam_rnnt.go and ai/gigaam.go of the teacher
// repository (DynamicAdvancedSession per model part, CoreML-then-CPU
// execution provider fallback, a process-wide SetSharedLibraryPath/
// InitializeEnvironment gate).
package inference

import (
	"fmt"
	"log"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	initMu          sync.Mutex
	initialized     bool
	coremlFlagUseNone uint32 = 0x000
)

// EnsureRuntime initializes the process-wide ONNX Runtime environment at
// most once. Safe to call from multiple model constructors concurrently.
func EnsureRuntime() error {
	initMu.Lock()
	defer initMu.Unlock()

	if initialized {
		return nil
	}

	if libPath := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); libPath != "" {
		log.Printf("[inference] using ONNX Runtime library: %s", libPath)
		ort.SetSharedLibraryPath(libPath)
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize onnxruntime environment: %w", err)
	}

	initialized = true
	log.Println("[inference] ONNX Runtime initialized")
	return nil
}

// ComputeUnit is a pure hint to the adapter about which accelerator to
// prefer; it never changes observable outputs.
type ComputeUnit int

const (
	ComputeCPUOnly ComputeUnit = iota
	ComputeCPUAndGPU
	ComputeCPUAndAccelerator
	ComputeAny
)

func newSessionOptions(unit ComputeUnit) (*ort.SessionOptions, string, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, "", fmt.Errorf("new session options: %w", err)
	}

	computeDesc := "CPU"
	if unit == ComputeCPUAndAccelerator || unit == ComputeAny {
		if err := options.AppendExecutionProviderCoreML(coremlFlagUseNone); err != nil {
			log.Printf("[inference] CoreML unavailable, falling back to CPU: %v", err)
		} else {
			computeDesc = "CoreML (CPU+GPU+ANE)"
		}
	}
	return options, computeDesc, nil
}
