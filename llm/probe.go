package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// ProbeReport describes what a model server answered to a discovery probe.
type ProbeReport struct {
	Endpoint string   `json:"endpoint"`
	Healthy  bool     `json:"healthy"`
	Models   []string `json:"models,omitempty"`
	Error    string   `json:"error,omitempty"`
}

var probeClient = &http.Client{Timeout: 5 * time.Second}

// Probe asks the server behind a chat endpoint which models it serves. It
// tries the Ollama tags API first and falls back to the OpenAI-compatible
// model listing, so one code path covers Ollama, LM Studio, and plain
// OpenAI-style servers.
func Probe(ctx context.Context, endpoint string) ProbeReport {
	report := ProbeReport{Endpoint: endpoint}
	base, err := baseURL(endpoint)
	if err != nil {
		report.Error = err.Error()
		return report
	}

	models, tagsErr := fetchOllamaTags(ctx, base)
	if tagsErr == nil {
		report.Healthy = true
		report.Models = models
		return report
	}
	models, openaiErr := fetchOpenAIModels(ctx, base)
	if openaiErr == nil {
		report.Healthy = true
		report.Models = models
		return report
	}
	report.Error = tagsErr.Error()
	return report
}

// baseURL strips the chat path from a full endpoint, keeping scheme://host.
func baseURL(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("endpoint %q has no scheme or host", endpoint)
	}
	return u.Scheme + "://" + u.Host, nil
}

func fetchOllamaTags(ctx context.Context, base string) ([]string, error) {
	var payload struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := probeGet(ctx, base+"/api/tags", &payload); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(payload.Models))
	for _, m := range payload.Models {
		if m.Name != "" {
			names = append(names, m.Name)
		}
	}
	return names, nil
}

func fetchOpenAIModels(ctx context.Context, base string) ([]string, error) {
	var payload struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := probeGet(ctx, base+"/v1/models", &payload); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(payload.Data))
	for _, m := range payload.Data {
		if m.ID != "" {
			names = append(names, m.ID)
		}
	}
	return names, nil
}

func probeGet(ctx context.Context, rawurl string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
	if err != nil {
		return err
	}
	resp, err := probeClient.Do(req)
	if err != nil {
		return classifyTransport(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s", ErrBadResponse, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return nil
}
