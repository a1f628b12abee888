package crafter

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// Copywriter polishes rendered campaign copy through AWS Bedrock (Claude).
// It is an optional, flag-gated pass: when disabled or failing, the
// template render ships as-is.
type Copywriter struct {
	client  *bedrockruntime.Client
	modelID string
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeRequest struct {
	AnthropicVersion string          `json:"anthropic_version"`
	MaxTokens        int             `json:"max_tokens"`
	System           string          `json:"system,omitempty"`
	Messages         []claudeMessage `json:"messages"`
	Temperature      float64         `json:"temperature,omitempty"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// NewCopywriter creates a Bedrock-backed copywriter.
func NewCopywriter(ctx context.Context, region, modelID string) (*Copywriter, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &Copywriter{
		client:  bedrockruntime.NewFromConfig(cfg),
		modelID: modelID,
	}, nil
}

const copywriterSystem = `You tighten cold outreach emails. Keep the meaning, ` +
	`remove filler, keep it under 120 words, plain text only. Never add claims, ` +
	`links, or recipients that are not in the draft. Return only the rewritten body.`

// Polish rewrites the message body for concision. The subject is never
// touched (it already passed compliance checks). On any failure the
// original message is returned with the error for the caller to log.
func (c *Copywriter) Polish(ctx context.Context, msg *Message) (*Message, error) {
	req := claudeRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        500,
		System:           copywriterSystem,
		Messages: []claudeMessage{
			{Role: "user", Content: msg.Body},
		},
		Temperature: 0.3,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return msg, fmt.Errorf("marshal bedrock request: %w", err)
	}

	output, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return msg, fmt.Errorf("bedrock invoke: %w", err)
	}

	var resp claudeResponse
	if err := json.Unmarshal(output.Body, &resp); err != nil {
		return msg, fmt.Errorf("parse bedrock response: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return msg, fmt.Errorf("bedrock returned empty body")
	}

	log.Printf("copywriter: polished body (in: %d tokens, out: %d tokens)",
		resp.Usage.InputTokens, resp.Usage.OutputTokens)

	polished := *msg
	polished.Body = text
	return &polished, nil
}
