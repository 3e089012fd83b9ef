// Command paramcheck verifies that a deployed environment published the full
// parameter registry. It reads /automation/{environment} from SSM and reports
// entries that are missing or unexpected against the published contract.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ssm"
)

// messagingCategories are always published; gatewayCategories only when the
// environment deploys the webhook entry point.
var messagingCategories = []string{
	"queues/order/url",
	"queues/order/arn",
	"queues/result/url",
	"queues/result/arn",
	"queues/config",
	"roles/webhook/arn",
	"roles/worker/arn",
	"roles/feedback/arn",
	"monitoring/queue-alerts/topic-arn",
}

var gatewayCategories = []string{
	"api-gateway/rest-api-id",
	"api-gateway/rest-api-url",
	"api-gateway/domain-name",
	"api-gateway/stage-name",
	"api-gateway/source-arn",
}

func main() {
	environment := flag.String("env", "dev", "environment name to verify")
	gateway := flag.Bool("gateway", false, "also expect the gateway registry entries")
	flag.Parse()

	prefix := fmt.Sprintf("/automation/%s", *environment)

	sess, err := session.NewSession()
	if err != nil {
		log.Fatalf("unable to create AWS session: %v", err)
	}
	client := ssm.New(sess)

	published, err := fetchParameters(client, prefix)
	if err != nil {
		log.Fatalf("unable to read parameters under %s: %v", prefix, err)
	}

	expected := make(map[string]bool, len(messagingCategories)+len(gatewayCategories))
	for _, category := range messagingCategories {
		expected[fmt.Sprintf("%s/%s", prefix, category)] = true
	}
	if *gateway {
		for _, category := range gatewayCategories {
			expected[fmt.Sprintf("%s/%s", prefix, category)] = true
		}
	}

	var missing, unexpected []string
	for path := range expected {
		if _, ok := published[path]; !ok {
			missing = append(missing, path)
		}
	}
	for path := range published {
		if !expected[path] {
			unexpected = append(unexpected, path)
		}
	}
	sort.Strings(missing)
	sort.Strings(unexpected)

	fmt.Printf("registry %s: %d published, %d expected\n", prefix, len(published), len(expected))
	for _, path := range missing {
		fmt.Printf("  missing:    %s\n", path)
	}
	for _, path := range unexpected {
		fmt.Printf("  unexpected: %s\n", path)
	}

	if len(missing) > 0 || len(unexpected) > 0 {
		os.Exit(1)
	}
	fmt.Println("registry matches the published contract")
}

// fetchParameters pages through every parameter under the prefix.
func fetchParameters(client *ssm.SSM, prefix string) (map[string]string, error) {
	published := make(map[string]string)
	input := &ssm.GetParametersByPathInput{
		Path:      aws.String(prefix),
		Recursive: aws.Bool(true),
	}
	err := client.GetParametersByPathPages(input, func(page *ssm.GetParametersByPathOutput, lastPage bool) bool {
		for _, parameter := range page.Parameters {
			name := aws.StringValue(parameter.Name)
			if strings.HasPrefix(name, prefix) {
				published[name] = aws.StringValue(parameter.Value)
			}
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return published, nil
}
