package main

import (
	"os"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsapigateway"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslambda"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
)

type CircuitYTDStackProps struct {
	awscdk.StackProps
}

// env copies deploy-time settings into the function environment, skipping
// unset ones so the service defaults apply.
func env(keys ...string) *map[string]*string {
	vars := map[string]*string{
		"APP":        jsii.String("prod"),
		"LOG_FORMAT": jsii.String("json"),
	}
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			vars[key] = jsii.String(v)
		}
	}
	return &vars
}

func NewCircuitYTDStack(scope constructs.Construct, id string, props *CircuitYTDStackProps) awscdk.Stack {
	var stackProps awscdk.StackProps
	if props != nil {
		stackProps = props.StackProps
	}

	stack := awscdk.NewStack(scope, &id, &stackProps)

	lambdaFn := awslambda.NewFunction(stack, jsii.String("CircuitYTDApi"), &awslambda.FunctionProps{
		Runtime: awslambda.Runtime_PROVIDED_AL2023(),
		Handler: jsii.String("bootstrap"),
		Code:    awslambda.Code_FromAsset(jsii.String("../"), nil),
		Timeout: awscdk.Duration_Seconds(jsii.Number(60)),
		Environment: env(
			"POSTGRES_DSN",
			"SUPABASE_URL",
			"SUPABASE_SERVICE_ROLE_KEY",
			"REDIS_URL",
			"CACHE_TTL",
			"ADMIN_TOKEN_HASH",
			"CORS_ORIGIN",
			"LOG_LEVEL",
			"REQUEST_TIMEOUT",
		),
	})

	api := awsapigateway.NewLambdaRestApi(stack, jsii.String("CircuitYTDApiGateway"), &awsapigateway.LambdaRestApiProps{
		Handler: lambdaFn,
	})

	awscdk.NewCfnOutput(stack, jsii.String("ApiUrl"), &awscdk.CfnOutputProps{Value: api.Url()})

	return stack
}

func main() {
	app := awscdk.NewApp(nil)
	NewCircuitYTDStack(app, "CircuitYTDStack", &CircuitYTDStackProps{})
	app.Synth(nil)
}
