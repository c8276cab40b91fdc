package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/groundwork-io/groundwork/internal/ir"
)

var policyFile string

var policyCmd = &cobra.Command{
	Use:   "policy-check <plan-file>",
	Short: "Check a saved plan against policy rules",
	Long: `Evaluates a saved plan (groundwork plan --out plan.json) against policy
rules defined in a JSON policy file.

Policy rules can enforce constraints like:
  - Prevent deletion of critical resources
  - Require specific attributes on every resource
  - Restrict attribute values

Example policy file:
  {
    "rules": [
      {
        "name": "no-deletes",
        "description": "production resources must not be deleted",
        "resource_type": "webApp",
        "condition": "deny_action",
        "value": "DELETE",
        "severity": "error"
      }
    ]
  }`,
	Args: cobra.ExactArgs(1),
	RunE: runPolicyCheck,
}

func init() {
	policyCmd.Flags().StringVarP(&policyFile, "policy", "p", ".groundwork/policies.json", "Path to policy file")
}

// PolicyFile is a collection of policy rules.
type PolicyFile struct {
	Rules []PolicyRule `json:"rules"`
}

// PolicyRule defines a single policy check.
type PolicyRule struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	ResourceType string `json:"resource_type"` // empty = all types
	Condition    string `json:"condition"`     // deny_action, attribute_equals, attribute_not_equals, require_attribute
	Attribute    string `json:"attribute"`
	Value        string `json:"value"`
	Severity     string `json:"severity"` // "error" (default) or "warning"
}

// PolicyViolation is a policy check failure.
type PolicyViolation struct {
	Rule     PolicyRule
	Resource string
	Message  string
}

func runPolicyCheck(cmd *cobra.Command, args []string) error {
	planData, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read plan file: %w", err)
	}
	var plan ir.Plan
	if err := json.Unmarshal(planData, &plan); err != nil {
		return fmt.Errorf("failed to parse plan: %w", err)
	}

	policyData, err := os.ReadFile(policyFile)
	if err != nil {
		return fmt.Errorf("failed to read policy file %s: %w", policyFile, err)
	}
	var policies PolicyFile
	if err := json.Unmarshal(policyData, &policies); err != nil {
		return fmt.Errorf("failed to parse policy file: %w", err)
	}

	violations := evaluatePolicies(&plan, &policies)

	errs := 0
	warnings := 0
	for _, v := range violations {
		severity := strings.ToUpper(v.Rule.Severity)
		if severity == "" || severity == "ERROR" {
			errs++
			fmt.Printf("%s[ERROR]%s %s: %s\n", colorize("\033[31m"), colorize("\033[0m"), v.Rule.Name, v.Message)
		} else {
			warnings++
			fmt.Printf("%s[WARN]%s %s: %s\n", colorize("\033[33m"), colorize("\033[0m"), v.Rule.Name, v.Message)
		}
	}

	fmt.Printf("\nPolicy check complete: %d error(s), %d warning(s)\n", errs, warnings)

	if errs > 0 {
		return fmt.Errorf("policy check failed with %d error(s)", errs)
	}
	return nil
}

func evaluatePolicies(plan *ir.Plan, policies *PolicyFile) []PolicyViolation {
	var violations []PolicyViolation

	for _, rule := range policies.Rules {
		for _, change := range plan.Changes {
			if rule.ResourceType != "" {
				resourceType := ""
				if change.Desired != nil {
					resourceType = change.Desired.Type
				} else if change.Prior != nil {
					resourceType = change.Prior.Type
				}
				if resourceType != rule.ResourceType {
					continue
				}
			}

			switch rule.Condition {
			case "deny_action":
				if strings.EqualFold(string(change.Action), rule.Value) {
					violations = append(violations, PolicyViolation{
						Rule:     rule,
						Resource: change.Address,
						Message:  fmt.Sprintf("Resource %s: action %s is denied by policy %q", change.Address, change.Action, rule.Description),
					})
				}

			case "attribute_equals":
				if change.Desired != nil {
					if val, ok := change.Desired.Attributes[rule.Attribute]; ok {
						if fmt.Sprintf("%v", val) == rule.Value {
							violations = append(violations, PolicyViolation{
								Rule:     rule,
								Resource: change.Address,
								Message:  fmt.Sprintf("Resource %s: attribute %s=%v violates policy %q", change.Address, rule.Attribute, val, rule.Description),
							})
						}
					}
				}

			case "attribute_not_equals":
				if change.Desired != nil {
					if val, ok := change.Desired.Attributes[rule.Attribute]; ok {
						if fmt.Sprintf("%v", val) != rule.Value {
							violations = append(violations, PolicyViolation{
								Rule:     rule,
								Resource: change.Address,
								Message:  fmt.Sprintf("Resource %s: attribute %s=%v violates policy %q (expected %s)", change.Address, rule.Attribute, val, rule.Description, rule.Value),
							})
						}
					}
				}

			case "require_attribute":
				if change.Desired != nil && (change.Action == ir.ActionCreate || change.Action == ir.ActionUpdate) {
					if _, ok := change.Desired.Attributes[rule.Attribute]; !ok {
						violations = append(violations, PolicyViolation{
							Rule:     rule,
							Resource: change.Address,
							Message:  fmt.Sprintf("Resource %s: missing required attribute %q per policy %q", change.Address, rule.Attribute, rule.Description),
						})
					}
				}
			}
		}
	}
	return violations
}
