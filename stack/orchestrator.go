package stack

import (
	"fmt"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
)

// ProvisionedStacks exposes the top-level stacks built for one environment.
type ProvisionedStacks struct {
	Messaging *DualQueueMessageStack
	// Gateway is nil when the environment has no complete domain
	// configuration; the component is skipped, not failed.
	Gateway *ApiGatewayStack
}

// BuildStacks instantiates the stacks for a resolved environment in dependency
// order. The messaging stack is unconditional; the gateway stack is gated on
// the domain configuration and ordered after the messaging stack at deploy
// time, since its entry point assumes the queues are already live.
func BuildStacks(scope constructs.Construct, cfg EnvironmentConfig) *ProvisionedStacks {
	env := &awscdk.Environment{
		Account: jsii.String(cfg.AccountID),
		Region:  jsii.String(cfg.Region),
	}

	messaging := NewDualQueueMessageStack(scope, fmt.Sprintf("DualQueueMessageStack-%s", cfg.EnvironmentName), &DualQueueMessageStackProps{
		StackProps: awscdk.StackProps{
			Env:         env,
			Description: jsii.String(fmt.Sprintf("Task-pipeline messaging backbone (%s)", cfg.EnvironmentName)),
		},
		Config: cfg,
	})
	tagStack(messaging.Stack, cfg)

	stacks := &ProvisionedStacks{Messaging: messaging}

	if cfg.GatewayEnabled() {
		gateway := NewApiGatewayStack(scope, fmt.Sprintf("ApiGatewayStack-%s", cfg.EnvironmentName), &ApiGatewayStackProps{
			StackProps: awscdk.StackProps{
				Env:         env,
				Description: jsii.String(fmt.Sprintf("Task-pipeline webhook entry point (%s)", cfg.EnvironmentName)),
			},
			Config: cfg,
		})
		// Deploy-time ordering only: the gateway references the webhook
		// function by name, so nothing below forces this sequencing.
		gateway.AddDependency(messaging.Stack, jsii.String("queues must exist before the webhook entry point goes live"))
		tagStack(gateway.Stack, cfg)
		stacks.Gateway = gateway
	}

	return stacks
}

// tagStack applies the fixed attribution tag pair plus any per-environment
// tags to a top-level stack.
func tagStack(stack awscdk.Stack, cfg EnvironmentConfig) {
	awscdk.Tags_Of(stack).Add(jsii.String(ProjectTagKey), jsii.String(cfg.Project), nil)
	awscdk.Tags_Of(stack).Add(jsii.String(EnvironmentTagKey), jsii.String(cfg.EnvironmentName), nil)
	for key, value := range cfg.Tags {
		awscdk.Tags_Of(stack).Add(jsii.String(key), jsii.String(value), nil)
	}
}
