package predictor

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/rotisserie/eris"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

var ortInit sync.Mutex

// initRuntime loads the ONNX Runtime shared library once per process.
func initRuntime(libPath string) error {
	ortInit.Lock()
	defer ortInit.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return eris.Wrap(err, "onnx: initialize runtime")
	}
	return nil
}

// ONNXModel runs an exported sequence model through ONNX Runtime.
type ONNXModel struct {
	path    string
	input   string
	output  string
	session *ort.DynamicAdvancedSession
}

// ONNXOptions configures NewONNXModel.
type ONNXOptions struct {
	Path        string
	LibraryPath string
	InputName   string
	OutputName  string
}

// NewONNXModel loads the model file and opens a session with a dynamic
// sequence dimension.
func NewONNXModel(opts ONNXOptions) (*ONNXModel, error) {
	if opts.Path == "" {
		return nil, eris.New("onnx: model path is required")
	}
	if _, err := os.Stat(opts.Path); err != nil {
		return nil, eris.Wrapf(err, "onnx: stat model %s", opts.Path)
	}
	if opts.InputName == "" {
		opts.InputName = "input"
	}
	if opts.OutputName == "" {
		opts.OutputName = "output"
	}

	if err := initRuntime(opts.LibraryPath); err != nil {
		return nil, err
	}

	session, err := ort.NewDynamicAdvancedSession(opts.Path,
		[]string{opts.InputName}, []string{opts.OutputName}, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "onnx: open session %s", opts.Path)
	}

	zap.L().Info("onnx model loaded",
		zap.String("path", opts.Path),
		zap.String("input", opts.InputName),
		zap.String("output", opts.OutputName),
	)

	return &ONNXModel{
		path:    opts.Path,
		input:   opts.InputName,
		output:  opts.OutputName,
		session: session,
	}, nil
}

// Name returns the model file name.
func (m *ONNXModel) Name() string {
	return filepath.Base(m.path)
}

// Predict runs one forward pass over seq shaped [1, len(seq), 1].
func (m *ONNXModel) Predict(ctx context.Context, seq []float32) (float32, error) {
	if err := ctx.Err(); err != nil {
		return 0, eris.Wrap(err, "onnx: predict")
	}
	if m.session == nil {
		return 0, eris.New("onnx: session closed")
	}

	in, err := ort.NewTensor(ort.NewShape(1, int64(len(seq)), 1), seq)
	if err != nil {
		return 0, eris.Wrap(err, "onnx: input tensor")
	}
	defer in.Destroy() //nolint:errcheck

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		return 0, eris.Wrap(err, "onnx: output tensor")
	}
	defer out.Destroy() //nolint:errcheck

	if err := m.session.Run([]ort.Value{in}, []ort.Value{out}); err != nil {
		return 0, eris.Wrap(err, "onnx: run")
	}

	data := out.GetData()
	if len(data) == 0 {
		return 0, eris.New("onnx: empty output")
	}
	return data[0], nil
}

// Close destroys the session. The shared runtime stays loaded.
func (m *ONNXModel) Close() error {
	if m.session == nil {
		return nil
	}
	err := m.session.Destroy()
	m.session = nil
	return eris.Wrap(err, "onnx: destroy session")
}
