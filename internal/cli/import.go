package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/groundwork-io/groundwork/internal/eval"
	"github.com/groundwork-io/groundwork/internal/ir"
	"github.com/groundwork-io/groundwork/internal/provider"
)

var importProvider string

var importCmd = &cobra.Command{
	Use:   "import <resource-address> <remote-id>",
	Short: "Import an existing resource into Groundwork state",
	Long: `Adopts an existing remote object into the state file.

This does not generate configuration - you must declare the corresponding
resource yourself. It only adds the resource to the state so that
Groundwork will manage it going forward.

Example:
  groundwork import webApp.storefront storefront-prod-01`,
	Args: cobra.ExactArgs(2),
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVar(&importProvider, "provider", "", "Provider managing the resource (defaults to the declaration, then \"local\")")
}

func runImport(cmd *cobra.Command, args []string) error {
	addr, remoteID := args[0], args[1]

	typ, name, ok := ir.SplitAddress(addr)
	if !ok {
		return fmt.Errorf("invalid resource address %q, expected format type.name", addr)
	}

	dir, entryPoint, err := resolveProject(nil)
	if err != nil {
		return err
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
	if currentState.Resource(addr) != nil {
		return fmt.Errorf("resource %s is already tracked in state", addr)
	}

	// the declaration, when present, supplies provider and inputs
	providerName := importProvider
	var inputs map[string]any
	if cfg, err := eval.Load(ctx, dir, entryPoint, nil); err == nil {
		if res := cfg.Resource(addr); res != nil {
			if providerName == "" {
				providerName = res.ProviderName()
			}
			inputs = res.Attributes
		}
	}
	if providerName == "" {
		providerName = ir.DefaultProvider
	}

	registry := newRegistry()
	if err := registry.Load(providerName); err != nil {
		return fmt.Errorf("failed to load provider %s: %w", providerName, err)
	}
	prov, err := registry.Get(providerName)
	if err != nil {
		return err
	}

	resp, err := prov.Read(ctx, &provider.ReadRequest{Type: typ, ID: remoteID})
	if err != nil {
		return fmt.Errorf("failed to read remote resource: %w", err)
	}
	if !resp.Exists {
		return fmt.Errorf("no %s with id %q exists in provider %s", typ, remoteID, providerName)
	}

	currentState.Resources = append(currentState.Resources, &ir.ResourceState{
		Type:     typ,
		Name:     name,
		Provider: providerName,
		ID:       remoteID,
		Inputs:   inputs,
		Outputs:  resp.Outputs,
	})
	if err := backend.Write(ctx, currentState); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}

	_ = writeAuditLog(AuditEntry{
		Operation: "import",
		Changes:   []AuditChange{{Address: addr, Action: "IMPORT"}},
	})

	fmt.Printf("Imported %s (id: %s)\n", addr, remoteID)
	if inputs == nil {
		fmt.Fprintln(os.Stderr, "Warning: no configuration found for this address; declare it before the next plan or it will be planned for deletion.")
	}
	return nil
}
