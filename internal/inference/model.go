package inference

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"

	"voxstream/internal/errs"
	"voxstream/internal/tensor"
)

// FeatureBundle is a name→tensor mapping, the boundary type every model call
// accepts and returns.
type FeatureBundle map[string]*tensor.Tensor

// Model is the uniform facade every neural building block is invoked
// through. Implementations are stateless and safe for concurrent use.
type Model interface {
	Predict(inputs FeatureBundle) (FeatureBundle, error)
	Name() string
	Close()
}

// extractNames pulls the Name field out of onnxruntime's input/output info,
// exactly as ai/gigaam_rnnt.go's extractNames helper does.
func extractNames(info []ort.InputOutputInfo) []string {
	names := make([]string, len(info))
	for i, inf := range info {
		names[i] = inf.Name
	}
	return names
}

// OnnxModel adapts a single ONNX graph (one of mel-spectrogram, encoder,
// predictor, joint, segmentation) to the Model interface. The embedding
// model is run through sherpa-onnx in internal/diarize/embedding instead.
type OnnxModel struct {
	name        string
	session     *ort.DynamicAdvancedSession
	inputNames  []string
	outputNames []string
	computeDesc string
}

// NewOnnxModel loads the graph at path and prepares a session whose input/
// output order is discovered from the model itself: names are authoritative
// for meaning, order is whatever the graph declares.
func NewOnnxModel(name, path string, unit ComputeUnit) (*OnnxModel, error) {
	if err := EnsureRuntime(); err != nil {
		return nil, err
	}

	inputInfo, outputInfo, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("inspect model %s: %w", name, err)
	}
	inputNames := extractNames(inputInfo)
	outputNames := extractNames(outputInfo)

	options, computeDesc, err := newSessionOptions(unit)
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(path, inputNames, outputNames, options)
	if err != nil {
		return nil, fmt.Errorf("create session for %s: %w", name, err)
	}

	return &OnnxModel{
		name:        name,
		session:     session,
		inputNames:  inputNames,
		outputNames: outputNames,
		computeDesc: computeDesc,
	}, nil
}

func (m *OnnxModel) Name() string        { return m.name }
func (m *OnnxModel) ComputeUnits() string { return m.computeDesc }

func (m *OnnxModel) Close() {
	if m.session != nil {
		m.session.Destroy()
	}
}

// Predict runs the underlying ONNX graph. Prediction is synchronous from
// the caller's perspective; the ONNX Runtime session itself may use its
// own internal thread pool.
func (m *OnnxModel) Predict(inputs FeatureBundle) (FeatureBundle, error) {
	inValues := make([]ort.Value, len(m.inputNames))
	for i, name := range m.inputNames {
		t, ok := inputs[name]
		if !ok {
			return nil, &errs.ProcessingFailedError{Reason: fmt.Sprintf("%s: missing input %q", m.name, name)}
		}
		v, err := toOrtValue(t)
		if err != nil {
			return nil, &errs.ProcessingFailedError{Reason: fmt.Sprintf("%s: input %q: %v", m.name, name, err)}
		}
		defer v.Destroy()
		inValues[i] = v
	}

	outValues := make([]ort.Value, len(m.outputNames))
	if err := m.session.Run(inValues, outValues); err != nil {
		return nil, &errs.RuntimeError{Reason: m.name, Err: err}
	}
	defer func() {
		for _, v := range outValues {
			if v != nil {
				v.Destroy()
			}
		}
	}()

	out := make(FeatureBundle, len(m.outputNames))
	for i, name := range m.outputNames {
		t, err := fromOrtValue(outValues[i])
		if err != nil {
			return nil, &errs.ProcessingFailedError{Reason: fmt.Sprintf("%s: output %q: %v", m.name, name, err)}
		}
		out[name] = t
	}
	return out, nil
}

// toOrtValue copies our tensor's logical (unpadded) elements into a fresh
// ort.Value of matching dtype and shape. Zero-copy chaining into onnxruntime
// would be a nice-to-have but isn't required for correctness, so this copies.
func toOrtValue(t *tensor.Tensor) (ort.Value, error) {
	shape := t.Shape()
	ortShape := make(ort.Shape, len(shape))
	for i, s := range shape {
		ortShape[i] = int64(s)
	}

	switch t.Dtype() {
	case tensor.F32:
		// Logical elements sit in rows of shape[n-1] at the padded row stride.
		inner, rowStride := shape[len(shape)-1], shape[len(shape)-1]
		if len(shape) >= 2 {
			rowStride = t.Strides()[len(shape)-2]
		}
		src := t.Float32()
		data := make([]float32, 0, t.ElementCount())
		for r := 0; r < t.ElementCount()/inner; r++ {
			data = append(data, src[r*rowStride:r*rowStride+inner]...)
		}
		return ort.NewTensor(ortShape, data)
	case tensor.I32:
		data := toInt64(t)
		return ort.NewTensor(ortShape, data)
	default:
		return nil, fmt.Errorf("unsupported input dtype %v", t.Dtype())
	}
}

// toInt64 widens an I32 tensor's values to int64, matching onnxruntime_go's
// int64 tensor convention for integer model inputs.
func toInt64(t *tensor.Tensor) []int64 {
	shape := t.Shape()
	inner, rowStride := shape[len(shape)-1], shape[len(shape)-1]
	if len(shape) >= 2 {
		rowStride = t.Strides()[len(shape)-2]
	}
	src := t.Int32()
	out := make([]int64, 0, t.ElementCount())
	for r := 0; r < t.ElementCount()/inner; r++ {
		for _, x := range src[r*rowStride : r*rowStride+inner] {
			out = append(out, int64(x))
		}
	}
	return out
}

func fromOrtValue(v ort.Value) (*tensor.Tensor, error) {
	switch tv := v.(type) {
	case *ort.Tensor[float32]:
		shape := tv.GetShape()
		dims := make([]int, len(shape))
		for i, s := range shape {
			dims[i] = int(s)
		}
		out, err := tensor.Alloc(dims, tensor.F32)
		if err != nil {
			return nil, err
		}
		copy(out.Float32(), tv.GetData())
		return out, nil
	case *ort.Tensor[int64]:
		shape := tv.GetShape()
		dims := make([]int, len(shape))
		for i, s := range shape {
			dims[i] = int(s)
		}
		out, err := tensor.Alloc(dims, tensor.I32)
		if err != nil {
			return nil, err
		}
		dst := out.Int32()
		for i, x := range tv.GetData() {
			dst[i] = int32(x)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported output value type %T", v)
	}
}
