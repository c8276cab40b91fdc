package cli

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/groundwork-io/groundwork/internal/config"
	"github.com/groundwork-io/groundwork/internal/ir"
	"github.com/groundwork-io/groundwork/internal/provider"
	"github.com/groundwork-io/groundwork/internal/state"
	"github.com/groundwork-io/groundwork/providers/docker"
	"github.com/groundwork-io/groundwork/providers/local"
)

// Distinct exit codes (beyond 0 and 1):
//
//	plan           2 = changes present
//	apply/destroy  2 = nothing to do, 3 = partial failure
//	fmt --check    2 = files not formatted
const (
	exitChanges        = 2
	exitNothingToDo    = 2
	exitPartialFailure = 3
	exitNotFormatted   = 2
)

// exitError carries a process exit code through cobra. A nil wrapped error
// means the outcome was already reported and only the code matters.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit code %d", e.code)
}

func (e *exitError) Unwrap() error { return e.err }

const defaultEntryPoint = "groundwork.yaml"

// resolveProject determines the project directory and config entry point
// from an optional positional argument, which may name a directory or a
// configuration file.
func resolveProject(args []string) (dir, entryPoint string, err error) {
	dir, err = os.Getwd()
	if err != nil {
		return "", "", fmt.Errorf("failed to get working directory: %w", err)
	}
	entryPoint = defaultEntryPoint

	if len(args) > 0 {
		absPath, err := filepath.Abs(args[0])
		if err != nil {
			return "", "", fmt.Errorf("failed to resolve path %s: %w", args[0], err)
		}
		info, err := os.Stat(absPath)
		if err != nil {
			return "", "", fmt.Errorf("failed to stat path %s: %w", args[0], err)
		}
		if info.IsDir() {
			dir = absPath
		} else {
			dir = filepath.Dir(absPath)
			entryPoint = filepath.Base(absPath)
		}
	}
	return dir, entryPoint, nil
}

// newRegistry returns the provider registry with the built-in providers.
func newRegistry() *provider.Registry {
	return provider.NewRegistry(map[string]provider.Factory{
		"local":  func() provider.Interface { return local.New() },
		"docker": func() provider.Interface { return docker.New() },
	})
}

// loadRequiredProviders loads every provider referenced by config resources.
func loadRequiredProviders(registry *provider.Registry, cfg *ir.Config) error {
	seen := make(map[string]bool)
	for _, res := range cfg.Resources {
		name := res.ProviderName()
		if !seen[name] {
			seen[name] = true
			if err := registry.Load(name); err != nil {
				return fmt.Errorf("failed to load provider %s: %w", name, err)
			}
		}
	}
	return nil
}

// loadStateProviders loads every provider referenced by state resources
// (needed for DELETE and refresh).
func loadStateProviders(registry *provider.Registry, st *ir.State) error {
	seen := make(map[string]bool)
	for _, res := range st.Resources {
		name := res.Provider
		if name == "" {
			name = ir.DefaultProvider
		}
		if !seen[name] {
			seen[name] = true
			if err := registry.Load(name); err != nil {
				return fmt.Errorf("failed to load provider %s: %w", name, err)
			}
		}
	}
	return nil
}

// openBackend builds the state backend for the project: S3 when configured,
// otherwise the workspace-local state file under .groundwork/.
func openBackend(dir string) (state.Backend, error) {
	if settings != nil && settings.Backend == "s3" {
		return state.NewBackend(&state.Config{
			Type:      "s3",
			Bucket:    settings.S3Bucket,
			Key:       settings.S3Key,
			Region:    settings.S3Region,
			Profile:   settings.S3Profile,
			LockTable: settings.LockTable,
		})
	}

	path := ""
	if settings != nil {
		path = settings.StatePath
	}
	if path == "" {
		path = filepath.Join(dir, workspaceStatePath())
	}
	return state.NewBackend(&state.Config{Type: "local", Path: path})
}

// loadSettings returns process settings, falling back to defaults when the
// environment has not been loaded yet (tests call commands directly).
func loadSettings() *config.Settings {
	if settings != nil {
		return settings
	}
	s, err := config.Load()
	if err != nil {
		return &config.Settings{LogLevel: "info", Parallelism: 10, Workers: 4}
	}
	settings = s
	return settings
}

// collectVars merges --var-file entries with --var flags, flags winning.
func collectVars(varFlags []string, varFile string) (map[string]string, error) {
	vars := make(map[string]string)

	if varFile != "" {
		fromFile, err := godotenv.Read(varFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read var file %s: %w", varFile, err)
		}
		for k, v := range fromFile {
			vars[k] = v
		}
	}

	for _, kv := range varFlags {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --var %q, expected key=value", kv)
		}
		vars[key] = value
	}
	return vars, nil
}

// confirm prompts on stdin and accepts "y" or "yes".
func confirm(prompt string) bool {
	fmt.Printf("%s (y/n): ", prompt)
	reader := bufio.NewReader(os.Stdin)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	response = strings.ToLower(strings.TrimSpace(response))
	return response == "y" || response == "yes"
}

// colorize returns the ANSI code, or nothing when color is disabled.
func colorize(code string) string {
	if noColor || (settings != nil && settings.NoColor) {
		return ""
	}
	return code
}

// renderPlanChanges prints the detailed change list for a plan.
func renderPlanChanges(plan *ir.Plan) {
	for _, change := range plan.Changes {
		symbol := "~"
		switch change.Action {
		case ir.ActionCreate:
			symbol = "+"
		case ir.ActionDelete:
			symbol = "-"
		case ir.ActionNoOp:
			symbol = " "
		}

		color := colorize("\033[0m")
		switch change.Action {
		case ir.ActionCreate:
			color = colorize("\033[32m")
		case ir.ActionDelete:
			color = colorize("\033[31m")
		case ir.ActionUpdate:
			color = colorize("\033[33m")
		}
		reset := colorize("\033[0m")

		var resourceType, resourceName string
		if change.Desired != nil {
			resourceType = change.Desired.Type
			resourceName = change.Desired.Name
		} else if change.Prior != nil {
			resourceType = change.Prior.Type
			resourceName = change.Prior.Name
		}

		fmt.Printf("\n%s  # %s will be %s%s\n", color, change.Address, change.Action, reset)
		fmt.Printf("%s  %s resource \"%s\" \"%s\" {\n", color, symbol, resourceType, resourceName)

		if len(change.Diff) > 0 {
			renderAttributeDiff(change, color)
		} else if change.Action == ir.ActionDelete && change.Prior != nil {
			for _, k := range sortedMapKeys(change.Prior.Inputs) {
				fmt.Printf("%s      - %s = %v\n", color, k, formatValue(change.Prior.Inputs[k]))
			}
		} else {
			fmt.Printf("%s      ...\n", color)
		}
		fmt.Printf("%s    }%s\n", color, reset)
	}
}

// renderAttributeDiff prints structured per-attribute diffs.
func renderAttributeDiff(change *ir.ResourceChange, color string) {
	reset := colorize("\033[0m")
	for _, key := range sortedDiffKeys(change.Diff) {
		diff := change.Diff[key]
		after := formatValue(diff.After)
		if diff.Unknown {
			after = ir.Unknown
		}
		switch diff.Action {
		case ir.ActionCreate:
			fmt.Printf("%s      + %s = %v%s\n", colorize("\033[32m"), key, after, reset)
		case ir.ActionDelete:
			fmt.Printf("%s      - %s = %v%s\n", colorize("\033[31m"), key, formatValue(diff.Before), reset)
		case ir.ActionUpdate:
			fmt.Printf("%s      ~ %s = %v -> %v%s\n", colorize("\033[33m"), key, formatValue(diff.Before), after, reset)
		default:
			fmt.Printf("%s        %s = %v\n", color, key, after)
		}
	}
}

// formatValue returns a human-readable representation of a value.
func formatValue(v any) string {
	if v == nil {
		return "null"
	}
	switch val := v.(type) {
	case string:
		return fmt.Sprintf("%q", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// renderPlanSummary prints the plan summary counts.
func renderPlanSummary(plan *ir.Plan) {
	fmt.Println("\nPlan Summary:")
	fmt.Printf("  Create: %d\n", plan.Summary.Create)
	fmt.Printf("  Update: %d\n", plan.Summary.Update)
	fmt.Printf("  Delete: %d\n", plan.Summary.Delete)
	fmt.Printf("  NoOp:   %d\n", plan.Summary.NoOp)
}

func sortedDiffKeys(diff map[string]*ir.AttributeDiff) []string {
	keys := make([]string, 0, len(diff))
	for k := range diff {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedMapKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
