package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var showJSON bool

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current state",
	Long:  `Displays a human-readable view of the current state file.`,
	RunE:  runShow,
}

func init() {
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output in JSON format")
}

func runShow(cmd *cobra.Command, args []string) error {
	dir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	backend, err := openBackend(dir)
	if err != nil {
		return err
	}
	s, err := backend.Read(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	if showJSON {
		data, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode state: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("State version: %d, serial: %d, lineage: %s\n", s.Version, s.Serial, s.Lineage)

	if len(s.Resources) == 0 {
		fmt.Println("\nNo resources in state.")
		return nil
	}

	for _, res := range s.Resources {
		fmt.Printf("\n# %s\n", res.Addr())
		fmt.Printf("  provider = %s\n", res.Provider)
		fmt.Printf("  id       = %s\n", res.ID)
		if len(res.Inputs) > 0 {
			fmt.Println("  inputs:")
			for _, k := range sortedMapKeys(res.Inputs) {
				fmt.Printf("    %s = %v\n", k, formatValue(res.Inputs[k]))
			}
		}
		if len(res.Outputs) > 0 {
			fmt.Println("  outputs:")
			for _, k := range sortedMapKeys(res.Outputs) {
				fmt.Printf("    %s = %v\n", k, formatValue(res.Outputs[k]))
			}
		}
		if len(res.Dependencies) > 0 {
			fmt.Printf("  dependencies = %v\n", res.Dependencies)
		}
	}

	if len(s.Outputs) > 0 {
		fmt.Println("\nOutputs:")
		for _, k := range sortedMapKeys(s.Outputs) {
			fmt.Printf("  %s = %v\n", k, s.Outputs[k])
		}
	}
	return nil
}
