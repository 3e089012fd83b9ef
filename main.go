package main

import (
	"log"
	"os"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/jsii-runtime-go"

	"task-pipeline-infra/stack"
)

func main() {
	defer jsii.Close()

	app := awscdk.NewApp(nil)

	registry, err := stack.LoadRegistry(app)
	if err != nil {
		log.Fatalf("invalid environment registry: %v", err)
	}

	// Explicit request wins over the registry default; -c env=... takes
	// precedence over the PIPELINE_ENV variable.
	requested := os.Getenv("PIPELINE_ENV")
	if v := app.Node().TryGetContext(jsii.String("env")); v != nil {
		if name, ok := v.(string); ok {
			requested = name
		}
	}

	cfg, err := stack.Resolve(registry, requested, os.Getenv("CDK_DEFAULT_ACCOUNT"))
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	stacks := stack.BuildStacks(app, cfg)
	log.Printf("synthesizing environment %s (gateway enabled: %v)", cfg.EnvironmentName, stacks.Gateway != nil)

	app.Synth(nil)
}
