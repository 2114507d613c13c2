package llm

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"
)

var novaModels = map[string]string{
	"nova-lite": "us.amazon.nova-2-lite-v1:0",
	"nova-pro":  "us.amazon.nova-pro-v1:0",
}

// ConverseAPI is the subset of the Bedrock runtime client used here.
type ConverseAPI interface {
	Converse(ctx context.Context, in *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockCompleter calls the Bedrock Converse API (Amazon Nova by default).
type BedrockCompleter struct {
	client ConverseAPI
	model  string
}

func NewBedrockCompleter(ctx context.Context, opts Options) (*BedrockCompleter, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	otelaws.AppendMiddlewares(&cfg.APIOptions)
	return NewBedrockCompleterWithClient(bedrockruntime.NewFromConfig(cfg), opts.Model), nil
}

func NewBedrockCompleterWithClient(client ConverseAPI, model string) *BedrockCompleter {
	if model == "" {
		model = "nova-lite"
	}
	return &BedrockCompleter{client: client, model: model}
}

func (c *BedrockCompleter) Complete(ctx context.Context, req Request) (string, error) {
	in := &bedrockruntime.ConverseInput{
		ModelId: aws.String(resolveModel(novaModels, req.Model, c.model)),
		System: []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: req.System},
		},
		Messages: []types.Message{
			{
				Role: types.ConversationRoleUser,
				Content: []types.ContentBlock{
					&types.ContentBlockMemberText{Value: req.User},
				},
			},
		},
		InferenceConfig: &types.InferenceConfiguration{
			Temperature: aws.Float32(float32(req.Temperature)),
		},
	}
	if req.MaxTokens > 0 {
		in.InferenceConfig.MaxTokens = aws.Int32(int32(req.MaxTokens))
	}

	resp, err := c.client.Converse(ctx, in)
	if err != nil {
		return "", fmt.Errorf("Bedrock Converse error: %w", err)
	}

	text := extractConverseText(resp)
	if text == "" {
		return "", fmt.Errorf("Bedrock: %w", ErrEmptyCompletion)
	}
	return text, nil
}

func extractConverseText(resp *bedrockruntime.ConverseOutput) string {
	if resp == nil || resp.Output == nil {
		return ""
	}
	msg, ok := resp.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return ""
	}
	for _, block := range msg.Value.Content {
		if tb, ok := block.(*types.ContentBlockMemberText); ok {
			return tb.Value
		}
	}
	return ""
}
