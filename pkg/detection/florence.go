package detection

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/teslashibe/go-ptzscan/internal/httpc"
)

// GroundingTask is the Florence-2 phrase grounding task prompt.
const GroundingTask = "<CAPTION_TO_PHRASE_GROUNDING>"

// Florence calls a Florence-2 phrase grounding service. The service runs the
// model; this side builds the prompt and scores the boxes.
type Florence struct {
	baseURL string
	size    string
	http    *http.Client
	logger  *slog.Logger
}

type groundRequest struct {
	Model       string `json:"model"`
	Task        string `json:"task"`
	Text        string `json:"text"`
	ImageBase64 string `json:"image_base64"`
}

type groundResponse struct {
	BBoxes [][]float64 `json:"bboxes"`
	Labels []string    `json:"labels"`
	Error  string      `json:"error,omitempty"`
}

// NewFlorence creates a client for the grounding service at baseURL. size is
// "base" or "large".
func NewFlorence(baseURL, size string, client *http.Client, logger *slog.Logger) (*Florence, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("detection: florence grounding URL required")
	}
	if size != "base" && size != "large" {
		return nil, fmt.Errorf("%w: florence size %q", ErrUnknownModel, size)
	}
	return &Florence{
		baseURL: strings.TrimRight(baseURL, "/"),
		size:    size,
		http:    client,
		logger:  logger,
	}, nil
}

// Detect grounds the queries joined as "q1 or q2 or ..." in the image.
// Reward is the box area divided by the image area.
func (f *Florence) Detect(ctx context.Context, jpeg []byte, queries []string) ([]Detection, error) {
	w, h, err := ImageSize(jpeg)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(groundRequest{
		Model:       "Florence-2-" + f.size,
		Task:        GroundingTask,
		Text:        strings.Join(queries, " or "),
		ImageBase64: base64.StdEncoding.EncodeToString(jpeg),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	resp, err := httpc.PostJSON(ctx, f.http, f.baseURL+"/ground", body)
	if err != nil {
		return nil, fmt.Errorf("florence request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var out groundResponse
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &out) == nil && out.Error != "" {
			msg = out.Error
		}
		return nil, &APIError{Provider: "florence", StatusCode: resp.StatusCode, Message: msg}
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	dets := make([]Detection, 0, len(out.BBoxes))
	for i, b := range out.BBoxes {
		if len(b) != 4 {
			f.logger.Warn("florence returned malformed box", "index", i, "box", b)
			continue
		}
		box := BoundingBox{X1: b[0], Y1: b[1], X2: b[2], Y2: b[3]}
		label := ""
		if i < len(out.Labels) {
			label = out.Labels[i]
		}
		dets = append(dets, Detection{
			BBox:   box,
			Label:  label,
			Reward: areaRatio(box, w, h),
		})
	}
	return dets, nil
}

// Close is a no-op; the service owns the model.
func (f *Florence) Close() error {
	return nil
}
