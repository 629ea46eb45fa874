// Package yolo runs YOLOv8-family ONNX models through OpenCV. It links cgo,
// so it lives apart from the HTTP backends; importing it registers the
// backend with detection.New.
package yolo

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-ptzscan/pkg/detection"
)

// Detector runs a YOLOv8-family ONNX model through OpenCV's DNN module.
type Detector struct {
	net       gocv.Net
	config    Config
	logger    *slog.Logger
	mu        sync.Mutex
	inputSize image.Point
}

// Config holds YOLO detector configuration.
type Config struct {
	ModelPath        string
	ConfidenceThresh float32
	NMSThresh        float32
	InputWidth       int
	InputHeight      int
}

// DefaultConfig returns defaults for yolov8n. The confidence floor is low
// because the scanner applies its own threshold.
func DefaultConfig() Config {
	return Config{
		ModelPath:        "models/yolov8n.onnx",
		ConfidenceThresh: 0.05,
		NMSThresh:        0.45,
		InputWidth:       640,
		InputHeight:      640,
	}
}

// New loads the ONNX model at cfg.ModelPath.
func New(cfg Config, logger *slog.Logger) (*Detector, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", detection.ErrModelNotFound, cfg.ModelPath)
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("yolo: failed to load model from %s", cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &Detector{
		net:       net,
		config:    cfg,
		logger:    logger,
		inputSize: image.Pt(cfg.InputWidth, cfg.InputHeight),
	}, nil
}

// Detect returns COCO detections whose class matches one of queries.
// Reward is 1 - class confidence.
func (d *Detector) Detect(ctx context.Context, jpeg []byte, queries []string) ([]detection.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", detection.ErrBadImage, err)
	}
	defer img.Close()
	if img.Empty() {
		return nil, fmt.Errorf("%w: empty image", detection.ErrBadImage)
	}

	blob := gocv.BlobFromImage(img, 1.0/255.0, d.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	wanted := detection.ClassFilter(queries)
	var dets []detection.Detection
	for _, o := range d.parse(output, float32(img.Cols()), float32(img.Rows())) {
		if !wanted(o.class) {
			continue
		}
		dets = append(dets, detection.Detection{
			BBox:   o.box,
			Label:  o.class,
			Reward: 1 - o.conf,
		})
	}

	if len(dets) > 0 {
		d.logger.Debug("detections", "count", len(dets))
	}
	return dets, nil
}

type hit struct {
	box   detection.BoundingBox
	class string
	conf  float64
}

// parse decodes the [1, 84, 8400] YOLOv8 output (4 box values + 80 class
// scores per candidate) and applies NMS.
func (d *Detector) parse(output gocv.Mat, imgW, imgH float32) []hit {
	var boxes []image.Rectangle
	var confidences []float32
	var classIDs []int

	rows := output.Cols()
	cols := output.Rows()

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil
	}

	sx := imgW / float32(d.config.InputWidth)
	sy := imgH / float32(d.config.InputHeight)
	for i := 0; i < rows; i++ {
		maxScore := float32(0)
		maxClassID := 0
		for c := 4; c < cols; c++ {
			if score := data[c*rows+i]; score > maxScore {
				maxScore = score
				maxClassID = c - 4
			}
		}
		if maxScore < d.config.ConfidenceThresh {
			continue
		}

		cx := data[0*rows+i]
		cy := data[1*rows+i]
		w := data[2*rows+i]
		h := data[3*rows+i]

		x1 := int((cx - w/2) * sx)
		y1 := int((cy - h/2) * sy)
		x2 := int((cx + w/2) * sx)
		y2 := int((cy + h/2) * sy)

		boxes = append(boxes, image.Rect(x1, y1, x2, y2))
		confidences = append(confidences, maxScore)
		classIDs = append(classIDs, maxClassID)
	}
	if len(boxes) == 0 {
		return nil
	}

	bounds := image.Rect(0, 0, int(imgW), int(imgH))
	var hits []hit
	for _, idx := range gocv.NMSBoxes(boxes, confidences, d.config.ConfidenceThresh, d.config.NMSThresh) {
		r := boxes[idx].Intersect(bounds)
		if classIDs[idx] >= len(COCOClasses) {
			continue
		}
		hits = append(hits, hit{
			box: detection.BoundingBox{
				X1: float64(r.Min.X), Y1: float64(r.Min.Y),
				X2: float64(r.Max.X), Y2: float64(r.Max.Y),
			},
			class: COCOClasses[classIDs[idx]],
			conf:  float64(confidences[idx]),
		})
	}
	return hits
}

// Close releases the network.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

// COCOClasses contains the 80 COCO class names.
var COCOClasses = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat",
	"dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack",
	"umbrella", "handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball",
	"kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket",
	"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
	"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
	"couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator",
	"book", "clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}

var _ detection.Detector = (*Detector)(nil)

func init() {
	detection.Register(detection.KindYOLO, func(cfg detection.Config) (detection.Detector, error) {
		yc := DefaultConfig()
		yc.ModelPath = filepath.Join(cfg.ModelDir, cfg.ModelName()+".onnx")
		return New(yc, cfg.Logger)
	})
}
