// Package extract is the adapter to the generative extraction service. It
// sends rendered text chunks or native file handles with a fixed instruction
// template and returns the raw response text; JSON validation is the
// caller's responsibility.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// Extractor is the boundary to the extraction service. Implementations must
// be safe for sequential use within one run; callers pace their own calls.
type Extractor interface {
	// ExtractText sends one rendered text block and returns raw output.
	ExtractText(ctx context.Context, block string) (string, error)

	// ExtractFile uploads a native document (PDF, image), waits until the
	// service reports the handle ready, then extracts from it.
	ExtractFile(ctx context.Context, data []byte, mimeType string) (string, error)

	// Repair sends malformed output plus its parse error back for one
	// corrective round-trip.
	Repair(ctx context.Context, malformed string, parseErr error) (string, error)
}

// GeminiOptions configures the Gemini-backed extractor.
type GeminiOptions struct {
	APIKey       string
	Model        string
	PollInterval time.Duration
	PollTimeout  time.Duration
	CallTimeout  time.Duration
}

// Gemini implements Extractor against the Gemini API.
type Gemini struct {
	client       *genai.Client
	model        string
	pollInterval time.Duration
	pollTimeout  time.Duration
	callTimeout  time.Duration
	log          zerolog.Logger
}

// NewGemini creates the Gemini extractor.
func NewGemini(ctx context.Context, opts GeminiOptions, log zerolog.Logger) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      opts.APIKey,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGemini: create genai client: %w", err)
	}

	g := &Gemini{
		client:       client,
		model:        opts.Model,
		pollInterval: opts.PollInterval,
		pollTimeout:  opts.PollTimeout,
		callTimeout:  opts.CallTimeout,
		log:          log,
	}
	if g.model == "" {
		g.model = "gemini-2.5-flash"
	}
	if g.pollInterval <= 0 {
		g.pollInterval = time.Second
	}
	if g.pollTimeout <= 0 {
		g.pollTimeout = 2 * time.Minute
	}
	if g.callTimeout <= 0 {
		g.callTimeout = 3 * time.Minute
	}
	return g, nil
}

// ExtractText implements Extractor.
func (g *Gemini) ExtractText(ctx context.Context, block string) (string, error) {
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: extractionPrompt + "\nINPUT:\n" + block},
			},
		},
	}
	return g.generate(ctx, contents)
}

// ExtractFile implements Extractor. The file is uploaded to the service and
// polled with backoff until ready; a failed or overdue handle fails this
// chunk only, never the whole run.
func (g *Gemini) ExtractFile(ctx context.Context, data []byte, mimeType string) (string, error) {
	file, err := g.client.Files.Upload(ctx, bytes.NewReader(data), &genai.UploadFileConfig{
		MIMEType: mimeType,
	})
	if err != nil {
		return "", fmt.Errorf("ExtractFile: upload: %w", err)
	}

	file, err = g.waitUntilReady(ctx, file)
	if err != nil {
		return "", err
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: extractionPrompt},
				{FileData: &genai.FileData{FileURI: file.URI, MIMEType: mimeType}},
			},
		},
	}
	return g.generate(ctx, contents)
}

// Repair implements Extractor.
func (g *Gemini) Repair(ctx context.Context, malformed string, parseErr error) (string, error) {
	g.log.Warn().Err(parseErr).Msg("Model output failed to parse, attempting repair")

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: repairPrompt(parseErr, malformed)},
			},
		},
	}
	return g.generate(ctx, contents)
}

// waitUntilReady polls the uploaded file with growing intervals until the
// service marks it active, the poll budget is exhausted, or the context ends.
func (g *Gemini) waitUntilReady(ctx context.Context, file *genai.File) (*genai.File, error) {
	deadline := time.Now().Add(g.pollTimeout)
	wait := g.pollInterval

	for file.State == genai.FileStateProcessing {
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("waitUntilReady: file %s not ready after %s", file.Name, g.pollTimeout)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waitUntilReady: %w", ctx.Err())
		case <-time.After(wait):
		}
		if wait < 10*time.Second {
			wait *= 2
		}

		var err error
		file, err = g.client.Files.Get(ctx, file.Name, nil)
		if err != nil {
			return nil, fmt.Errorf("waitUntilReady: poll file %s: %w", file.Name, err)
		}
	}

	if file.State == genai.FileStateFailed {
		return nil, fmt.Errorf("waitUntilReady: service reported failure for file %s", file.Name)
	}
	return file, nil
}

func (g *Gemini) generate(ctx context.Context, contents []*genai.Content) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}

	raw := resp.Text()
	if raw == "" {
		return "", fmt.Errorf("generate: empty response from model")
	}
	return CleanModelJSON(raw), nil
}
