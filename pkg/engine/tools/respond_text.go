package tools

import (
	"context"

	"zagent/pkg/engine/api"
)

// RespondTextTool is the terminal tool the model calls to hand its final
// answer back to the user. It performs no side effects; the Model
// Execution Loop intercepts the call itself to end the turn, gated on
// the mutation/skill-creation classifiers so a request that clearly asked
// for a file change can't be answered with text alone.
type RespondTextTool struct {
	BaseTool
}

// NewRespondTextTool creates the respond_text tool.
func NewRespondTextTool() *RespondTextTool {
	return &RespondTextTool{
		BaseTool: NewBaseTool(
			"respond_text",
			"Send your final answer to the user and end the turn. Call this only once you are done; it takes no further action.",
			[]ParameterDef{
				{Name: "text", Type: "string", Description: "The final answer to show the user", Required: true},
			},
			api.RiskNone,
		),
	}
}

func (t *RespondTextTool) Execute(ctx context.Context, args api.Args) (api.ToolResult, error) {
	text := GetStringArg(args, "text", "")
	return successText(text), nil
}
