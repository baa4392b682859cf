package literature

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/liliang-cn/paperchat/internal/domain"
)

// DefaultHuggingFaceURL is the Hugging Face Hub API root
const DefaultHuggingFaceURL = "https://huggingface.co/api"

// HuggingFace searches the Hugging Face dataset hub
type HuggingFace struct {
	baseURL string
	http    *httpClient
}

// NewHuggingFace creates a dataset source
func NewHuggingFace(baseURL string, opts ...ClientOption) *HuggingFace {
	if baseURL == "" {
		baseURL = DefaultHuggingFaceURL
	}
	return &HuggingFace{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    newHTTPClient(domain.SourceHuggingFace, opts),
	}
}

type hfDataset struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Downloads   int    `json:"downloads"`
	CardData    struct {
		Description string `json:"description"`
	} `json:"cardData"`
}

// SearchDatasets returns up to limit datasets matching query, most downloaded first
func (h *HuggingFace) SearchDatasets(ctx context.Context, query string, limit int) ([]domain.Dataset, error) {
	params := url.Values{}
	params.Set("search", query)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("sort", "downloads")
	params.Set("direction", "-1")

	body, err := h.http.get(ctx, h.baseURL+"/datasets", params, "application/json")
	if err != nil {
		return nil, err
	}

	var raw []hfDataset
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode huggingface response: %w", err)
	}

	datasets := make([]domain.Dataset, 0, len(raw))
	for _, d := range raw {
		if d.ID == "" {
			continue
		}
		desc := d.Description
		if desc == "" {
			desc = d.CardData.Description
		}
		if desc == "" {
			desc = "Dataset for " + query
		}
		datasets = append(datasets, domain.Dataset{
			Name:        d.ID,
			Description: desc,
			Downloads:   d.Downloads,
			URL:         "https://huggingface.co/datasets/" + d.ID,
		})
	}

	return datasets, nil
}
