package cli

import (
	"fmt"
	"os"
	"reflect"

	"github.com/spf13/cobra"

	"github.com/groundwork-io/groundwork/internal/ir"
	"github.com/groundwork-io/groundwork/internal/provider"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Update state to match real infrastructure",
	Long: `Reads the current state of all managed resources from their providers
and updates the state file to reflect actual infrastructure.

This detects drift between what Groundwork thinks exists and what actually
exists. Resources that no longer exist remotely are dropped from state.`,
	RunE: runRefresh,
}

func runRefresh(cmd *cobra.Command, args []string) error {
	dir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	ctx := cmd.Context()

	backend, err := openBackend(dir)
	if err != nil {
		return err
	}
	if err := backend.Lock(); err != nil {
		return err
	}
	defer backend.Unlock()

	currentState, err := backend.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}
	if len(currentState.Resources) == 0 {
		fmt.Println("No resources to refresh.")
		return nil
	}

	registry := newRegistry()
	if err := loadStateProviders(registry, currentState); err != nil {
		return err
	}

	fmt.Printf("Refreshing %d resource(s)...\n\n", len(currentState.Resources))

	drifted := 0
	gone := 0
	var kept []*ir.ResourceState

	for _, res := range currentState.Resources {
		addr := res.Addr()
		prov, err := registry.Get(res.Provider)
		if err != nil {
			fmt.Printf("  %s: SKIP (provider %s not available)\n", addr, res.Provider)
			kept = append(kept, res)
			continue
		}

		resp, err := prov.Read(ctx, &provider.ReadRequest{
			Type:    res.Type,
			ID:      res.ID,
			Outputs: res.Outputs,
		})
		if err != nil {
			fmt.Printf("  %s: ERROR (%v)\n", addr, err)
			kept = append(kept, res)
			continue
		}

		if !resp.Exists {
			fmt.Printf("  %s%s: GONE (no longer exists, removed from state)%s\n",
				colorize("\033[31m"), addr, colorize("\033[0m"))
			gone++
			continue
		}

		if len(resp.Outputs) > 0 && !reflect.DeepEqual(resp.Outputs, res.Outputs) {
			fmt.Printf("  %s%s: DRIFTED (outputs updated)%s\n",
				colorize("\033[33m"), addr, colorize("\033[0m"))
			res.Outputs = resp.Outputs
			drifted++
		} else {
			fmt.Printf("  %s: OK\n", addr)
		}
		kept = append(kept, res)
	}

	if drifted > 0 || gone > 0 {
		currentState.Resources = kept
		if err := backend.Write(ctx, currentState); err != nil {
			return fmt.Errorf("failed to write state: %w", err)
		}
	}

	fmt.Printf("\nRefresh complete. %d drifted, %d gone.\n", drifted, gone)
	return nil
}
