package embed

import (
	"context"
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

// OnnxRuntime runs the causal embedding model through ONNX Runtime.
// Engine serializes every call, so the session needs no extra locking.
type OnnxRuntime struct {
	session *ort.DynamicAdvancedSession
	hidden  int
	version string
}

// NewOnnxRuntime initializes the shared ONNX environment once and opens
// the model session. hiddenSize must match the model's output dimension.
func NewOnnxRuntime(sharedLibPath, modelPath string, hiddenSize int, version string) (*OnnxRuntime, error) {
	if !ort.IsInitialized() {
		if sharedLibPath != "" {
			ort.SetSharedLibraryPath(sharedLibPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize onnxruntime: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{"input_ids", "attention_mask"},
		[]string{"last_hidden_state"},
		nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open model %s: %w", modelPath, err)
	}
	return &OnnxRuntime{session: session, hidden: hiddenSize, version: version}, nil
}

func (r *OnnxRuntime) HiddenSize() int { return r.hidden }

func (r *OnnxRuntime) ModelVersion() string { return r.version }

func (r *OnnxRuntime) Close() error {
	return r.session.Destroy()
}

// Forward runs one padded batch and returns per-token hidden states
// shaped [row][position][dim].
func (r *OnnxRuntime) Forward(ctx context.Context, inputIDs, attentionMask [][]int64) ([][][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows := len(inputIDs)
	if rows == 0 {
		return nil, nil
	}
	cols := len(inputIDs[0])

	flatIDs := make([]int64, 0, rows*cols)
	flatMask := make([]int64, 0, rows*cols)
	for i := range inputIDs {
		flatIDs = append(flatIDs, inputIDs[i]...)
		flatMask = append(flatMask, attentionMask[i]...)
	}

	shape := ort.NewShape(int64(rows), int64(cols))
	idTensor, err := ort.NewTensor(shape, flatIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to build input tensor: %w", err)
	}
	defer idTensor.Destroy()
	maskTensor, err := ort.NewTensor(shape, flatMask)
	if err != nil {
		return nil, fmt.Errorf("failed to build mask tensor: %w", err)
	}
	defer maskTensor.Destroy()

	outputs := []ort.Value{nil}
	if err := r.session.Run([]ort.Value{idTensor, maskTensor}, outputs); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output tensor type %T", outputs[0])
	}
	defer out.Destroy()

	data := out.GetData()
	dims := out.GetShape()
	if len(dims) != 3 || int(dims[0]) != rows || int(dims[1]) != cols {
		return nil, fmt.Errorf("unexpected output shape %v", dims)
	}
	dim := int(dims[2])

	states := make([][][]float32, rows)
	for i := 0; i < rows; i++ {
		states[i] = make([][]float32, cols)
		for j := 0; j < cols; j++ {
			start := (i*cols + j) * dim
			vec := make([]float32, dim)
			copy(vec, data[start:start+dim])
			states[i][j] = vec
		}
	}
	return states, nil
}
