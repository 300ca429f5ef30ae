package handler

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/dmorgan81/sdtool/internal/log"
	"github.com/dmorgan81/sdtool/internal/tool"
	"github.com/samber/do"
)

type Input struct {
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type Output struct {
	Tool   string `json:"tool"`
	Result string `json:"result"`
}

type Handler struct {
	tools *tool.Tools
}

func NewHandler(i *do.Injector) (*Handler, error) {
	return &Handler{tools: do.MustInvoke[*tool.Tools](i)}, nil
}

func (h *Handler) Handle(ctx context.Context, input Input) (Output, error) {
	logger := log.FromContextOrDiscard(ctx).WithGroup("handler").With("tool", input.Tool)
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		logger = logger.With("request_id", lc.AwsRequestID)
	}
	logger.Info("handling lambda invocation")

	result, err := h.tools.Invoke(log.NewContext(ctx, logger), input.Tool, input.Arguments)
	if err != nil {
		logger.Error("invocation rejected", "error", err)
		return Output{}, err
	}
	return Output{Tool: input.Tool, Result: result}, nil
}
