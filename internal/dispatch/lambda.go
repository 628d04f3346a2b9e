package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
)

// LambdaAPI is the subset of the Lambda client used by LambdaInvoker
type LambdaAPI interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// LambdaInvoker starts asynchronous (Event) Lambda invocations. Targets are
// mapped to function names or ARNs.
type LambdaInvoker struct {
	client    LambdaAPI
	functions map[string]string
}

// NewLambdaInvoker creates an invoker using the default AWS credential chain
func NewLambdaInvoker(ctx context.Context, functions map[string]string) (*LambdaInvoker, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewLambdaInvokerWithClient(lambda.NewFromConfig(awsCfg), functions), nil
}

// NewLambdaInvokerWithClient wraps an existing Lambda client
func NewLambdaInvokerWithClient(client LambdaAPI, functions map[string]string) *LambdaInvoker {
	return &LambdaInvoker{client: client, functions: functions}
}

// InvokeAsync queues an Event invocation. Throttling and any status other
// than 202 Accepted are reported as ErrRejected.
func (l *LambdaInvoker) InvokeAsync(ctx context.Context, target string, payload []byte) error {
	function, ok := l.functions[target]
	if !ok || function == "" {
		return fmt.Errorf("%w: no function configured for target %q", ErrRejected, target)
	}

	out, err := l.client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(function),
		InvocationType: types.InvocationTypeEvent,
		Payload:        payload,
	})
	if err != nil {
		var throttled *types.TooManyRequestsException
		if errors.As(err, &throttled) {
			return fmt.Errorf("%w: %s throttled: %v", ErrRejected, function, err)
		}
		return fmt.Errorf("failed to invoke %s: %w", function, err)
	}

	if out.StatusCode != http.StatusAccepted {
		return fmt.Errorf("%w: %s returned status %d", ErrRejected, function, out.StatusCode)
	}
	return nil
}
