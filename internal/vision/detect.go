package vision

import (
	"fmt"
	"image"
	"sort"

	ort "github.com/yalue/onnxruntime_go"
)

// Detection is one face found by the detector, in source image pixels.
type Detection struct {
	BBox       [4]float32 // x1, y1, x2, y2
	Confidence float32
}

// Detector runs RetinaFace (det_10g) face detection using ONNX Runtime.
// A Detector reuses its tensors and must not be used concurrently.
type Detector struct {
	session       *ort.AdvancedSession
	inputTensor   *ort.Tensor[float32]
	outputTensors []*ort.Tensor[float32]
	threshold     float32
	nmsIoU        float32
	inputW        int
	inputH        int
}

var strides = []int{8, 16, 32}

const anchorsPerStride = 2

// det_10g output names, scores then boxes, per stride. The model has no batch dimension.
var (
	scoreOutputs = []string{"448", "471", "494"}
	bboxOutputs  = []string{"451", "474", "497"}
)

// NewDetector loads the RetinaFace ONNX model. opts may be nil.
func NewDetector(modelPath string, threshold float32, opts *ort.SessionOptions) (*Detector, error) {
	const inputW, inputH = 640, 640

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, inputH, inputW))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	var (
		names   []string
		tensors []*ort.Tensor[float32]
		values  []ort.Value
	)
	destroy := func() {
		inputTensor.Destroy()
		for _, t := range tensors {
			t.Destroy()
		}
	}

	for _, group := range []struct {
		names []string
		width int64
	}{{scoreOutputs, 1}, {bboxOutputs, 4}} {
		for i, name := range group.names {
			cells := int64((inputW / strides[i]) * (inputH / strides[i]) * anchorsPerStride)
			t, err := ort.NewEmptyTensor[float32](ort.NewShape(cells, group.width))
			if err != nil {
				destroy()
				return nil, fmt.Errorf("create output tensor %s: %w", name, err)
			}
			names = append(names, name)
			tensors = append(tensors, t)
			values = append(values, t)
		}
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input.1"}, names,
		[]ort.Value{inputTensor}, values,
		opts,
	)
	if err != nil {
		destroy()
		return nil, fmt.Errorf("create detector session: %w", err)
	}

	return &Detector{
		session:       session,
		inputTensor:   inputTensor,
		outputTensors: tensors,
		threshold:     threshold,
		nmsIoU:        0.4,
		inputW:        inputW,
		inputH:        inputH,
	}, nil
}

// Detect finds faces in img, most confident first.
func (d *Detector) Detect(img image.Image) ([]Detection, error) {
	copy(d.inputTensor.GetData(), toCHW(img, d.inputW, d.inputH, 127.5, 128.0))

	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("run detection: %w", err)
	}

	b := img.Bounds()
	return nms(d.decode(b.Dx(), b.Dy()), d.nmsIoU), nil
}

// decode turns anchor-relative RetinaFace outputs into pixel boxes.
func (d *Detector) decode(origW, origH int) []Detection {
	var detections []Detection

	scaleW := float32(origW) / float32(d.inputW)
	scaleH := float32(origH) / float32(d.inputH)

	for si, stride := range strides {
		scores := d.outputTensors[si].GetData()
		boxes := d.outputTensors[len(strides)+si].GetData()
		st := float32(stride)

		idx := 0
		for cy := 0; cy < d.inputH/stride; cy++ {
			for cx := 0; cx < d.inputW/stride; cx++ {
				for a := 0; a < anchorsPerStride; a, idx = a+1, idx+1 {
					if scores[idx] < d.threshold {
						continue
					}
					ax, ay := float32(cx)*st, float32(cy)*st
					detections = append(detections, Detection{
						BBox: [4]float32{
							clampF((ax-boxes[idx*4+0]*st)*scaleW, 0, float32(origW)),
							clampF((ay-boxes[idx*4+1]*st)*scaleH, 0, float32(origH)),
							clampF((ax+boxes[idx*4+2]*st)*scaleW, 0, float32(origW)),
							clampF((ay+boxes[idx*4+3]*st)*scaleH, 0, float32(origH)),
						},
						Confidence: scores[idx],
					})
				}
			}
		}
	}
	return detections
}

func (d *Detector) Close() {
	if d.session != nil {
		d.session.Destroy()
	}
	if d.inputTensor != nil {
		d.inputTensor.Destroy()
	}
	for _, t := range d.outputTensors {
		if t != nil {
			t.Destroy()
		}
	}
}

// nms performs Non-Maximum Suppression, returning survivors by descending confidence.
func nms(detections []Detection, iouThreshold float32) []Detection {
	sort.SliceStable(detections, func(i, j int) bool {
		return detections[i].Confidence > detections[j].Confidence
	})

	var result []Detection
	for _, cand := range detections {
		keep := true
		for _, kept := range result {
			if iou(cand.BBox, kept.BBox) > iouThreshold {
				keep = false
				break
			}
		}
		if keep {
			result = append(result, cand)
		}
	}
	return result
}

func iou(a, b [4]float32) float32 {
	w := min(a[2], b[2]) - max(a[0], b[0])
	h := min(a[3], b[3]) - max(a[1], b[1])
	if w <= 0 || h <= 0 {
		return 0
	}
	inter := w * h
	union := (a[2]-a[0])*(a[3]-a[1]) + (b[2]-b[0])*(b[3]-b[1]) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func clampF(v, lo, hi float32) float32 {
	return max(lo, min(v, hi))
}
