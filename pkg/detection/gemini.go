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

// GeminiBaseURL is the Generative Language API root.
const GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Gemini grounds query phrases with Gemini's 2D bounding box output.
type Gemini struct {
	apiKey        string
	model         string
	promptContext string
	baseURL       string
	http          *http.Client
	logger        *slog.Logger
}

// NewGemini creates a Gemini grounding backend for model, e.g.
// "gemini-2.0-flash".
func NewGemini(apiKey, model, promptContext string, client *http.Client, logger *slog.Logger) (*Gemini, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	return &Gemini{
		apiKey:        apiKey,
		model:         model,
		promptContext: promptContext,
		baseURL:       GeminiBaseURL,
		http:          client,
		logger:        logger,
	}, nil
}

// geminiBox is one entry of the JSON array the prompt asks for. box_2d is
// [ymin, xmin, ymax, xmax] normalized to 0-1000.
type geminiBox struct {
	Box   []float64 `json:"box_2d"`
	Label string    `json:"label"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func (g *Gemini) prompt(queries []string) string {
	var sb strings.Builder
	if g.promptContext != "" {
		sb.WriteString(strings.TrimSpace(g.promptContext))
		sb.WriteString(", detect ")
	} else {
		sb.WriteString("Detect ")
	}
	sb.WriteString(strings.Join(queries, " or "))
	sb.WriteString(". Return a JSON array where each entry has \"box_2d\" as [ymin, xmin, ymax, xmax] normalized to 0-1000 and \"label\". Return [] if there are none.")
	return sb.String()
}

// Detect asks Gemini for boxes around the queries. Reward is the box area
// divided by the image area.
func (g *Gemini) Detect(ctx context.Context, jpeg []byte, queries []string) ([]Detection, error) {
	w, h, err := ImageSize(jpeg)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"contents": []map[string]any{
			{
				"parts": []map[string]any{
					{"text": g.prompt(queries)},
					{"inline_data": map[string]string{"mime_type": "image/jpeg", "data": base64.StdEncoding.EncodeToString(jpeg)}},
				},
			},
		},
		"generationConfig": map[string]any{
			"temperature":      0.1,
			"responseMimeType": "application/json",
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, g.model, g.apiKey)
	resp, err := httpc.PostJSON(ctx, g.http, url, body)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var result geminiResponse
	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("status %d", resp.StatusCode)
		if json.Unmarshal(data, &result) == nil && result.Error.Message != "" {
			msg = result.Error.Message
		}
		return nil, &APIError{Provider: "gemini", StatusCode: resp.StatusCode, Message: msg}
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return nil, nil
	}

	text := stripFence(result.Candidates[0].Content.Parts[0].Text)
	var boxes []geminiBox
	if err := json.Unmarshal([]byte(text), &boxes); err != nil {
		return nil, fmt.Errorf("decode boxes: %w", err)
	}

	dets := make([]Detection, 0, len(boxes))
	for _, b := range boxes {
		if len(b.Box) != 4 {
			g.logger.Warn("gemini returned malformed box", "box", b.Box)
			continue
		}
		box := BoundingBox{
			X1: b.Box[1] / 1000 * float64(w),
			Y1: b.Box[0] / 1000 * float64(h),
			X2: b.Box[3] / 1000 * float64(w),
			Y2: b.Box[2] / 1000 * float64(h),
		}
		dets = append(dets, Detection{
			BBox:   box,
			Label:  b.Label,
			Reward: areaRatio(box, w, h),
		})
	}
	return dets, nil
}

// stripFence removes a ```json ... ``` wrapper if the model added one.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// Close is a no-op.
func (g *Gemini) Close() error {
	return nil
}
