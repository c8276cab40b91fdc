package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/groundwork-io/groundwork/internal/ir"
	"github.com/groundwork-io/groundwork/internal/state"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Manage Groundwork state",
	Long:  `Commands for inspecting and modifying Groundwork state.`,
}

var stateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List resources in state",
	RunE:  runStateList,
}

var stateShowCmd = &cobra.Command{
	Use:   "show <address>",
	Short: "Show attributes of a single resource",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateShow,
}

var stateMvCmd = &cobra.Command{
	Use:   "mv <source> <destination>",
	Short: "Move a resource to a new address",
	Args:  cobra.ExactArgs(2),
	RunE:  runStateMv,
}

var stateRmCmd = &cobra.Command{
	Use:   "rm <address>",
	Short: "Remove a resource from state (does not destroy)",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateRm,
}

func init() {
	stateCmd.AddCommand(stateListCmd)
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateMvCmd)
	stateCmd.AddCommand(stateRmCmd)
}

func stateBackend() (state.Backend, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return openBackend(dir)
}

func runStateList(cmd *cobra.Command, args []string) error {
	backend, err := stateBackend()
	if err != nil {
		return err
	}
	s, err := backend.Read(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	if len(s.Resources) == 0 {
		fmt.Println("No resources in state.")
		return nil
	}

	fmt.Printf("State version: %d, serial: %d, lineage: %s\n\n", s.Version, s.Serial, s.Lineage)
	for _, res := range s.Resources {
		fmt.Printf("  %s (provider: %s)\n", res.Addr(), res.Provider)
	}
	fmt.Printf("\nTotal: %d resource(s)\n", len(s.Resources))
	return nil
}

func runStateShow(cmd *cobra.Command, args []string) error {
	backend, err := stateBackend()
	if err != nil {
		return err
	}
	s, err := backend.Read(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	res := s.Resource(args[0])
	if res == nil {
		return fmt.Errorf("resource %s not found in state", args[0])
	}

	fmt.Printf("# %s\n", res.Addr())
	fmt.Printf("  provider = %s\n", res.Provider)
	fmt.Printf("  type     = %s\n", res.Type)
	fmt.Printf("  name     = %s\n", res.Name)
	fmt.Printf("  id       = %s\n", res.ID)

	if len(res.Inputs) > 0 {
		fmt.Println("\n  Inputs:")
		for _, k := range sortedMapKeys(res.Inputs) {
			fmt.Printf("    %s = %v\n", k, formatValue(res.Inputs[k]))
		}
	}
	if len(res.Outputs) > 0 {
		fmt.Println("\n  Outputs:")
		for _, k := range sortedMapKeys(res.Outputs) {
			fmt.Printf("    %s = %v\n", k, formatValue(res.Outputs[k]))
		}
	}
	if len(res.Dependencies) > 0 {
		fmt.Printf("\n  dependencies = %v\n", res.Dependencies)
	}
	return nil
}

func runStateMv(cmd *cobra.Command, args []string) error {
	backend, err := stateBackend()
	if err != nil {
		return err
	}
	if err := backend.Lock(); err != nil {
		return err
	}
	defer backend.Unlock()

	s, err := backend.Read(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	src, dst := args[0], args[1]
	typ, name, ok := ir.SplitAddress(dst)
	if !ok {
		return fmt.Errorf("invalid destination address %q, expected format type.name", dst)
	}
	if s.Resource(dst) != nil {
		return fmt.Errorf("resource %s already exists in state", dst)
	}

	res := s.Resource(src)
	if res == nil {
		return fmt.Errorf("resource %s not found in state", src)
	}
	res.Type = typ
	res.Name = name

	if err := backend.Write(cmd.Context(), s); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}

	_ = writeAuditLog(AuditEntry{
		Operation: "state.mv",
		Changes:   []AuditChange{{Address: src, Action: "MV"}, {Address: dst, Action: "MV"}},
	})

	fmt.Printf("Moved %s to %s\n", src, dst)
	return nil
}

func runStateRm(cmd *cobra.Command, args []string) error {
	backend, err := stateBackend()
	if err != nil {
		return err
	}
	if err := backend.Lock(); err != nil {
		return err
	}
	defer backend.Unlock()

	s, err := backend.Read(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	target := args[0]
	if s.Resource(target) == nil {
		return fmt.Errorf("resource %s not found in state", target)
	}
	s.RemoveResource(target)

	if err := backend.Write(cmd.Context(), s); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}

	_ = writeAuditLog(AuditEntry{
		Operation: "state.rm",
		Changes:   []AuditChange{{Address: target, Action: "RM"}},
	})

	fmt.Printf("Removed %s from state (resource was NOT destroyed)\n", target)
	return nil
}
