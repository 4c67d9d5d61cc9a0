package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"

	"xlate/translate"
)

// BenchConfig represents the bench command's configuration surface
type BenchConfig struct {
	Src         string `json:"src" jsonschema:"title=Source,description=Source architecture name"`
	Dst         string `json:"dst" jsonschema:"title=Destination,description=Destination architecture name"`
	Blocks      int    `json:"blocks" jsonschema:"title=Blocks,description=Number of independent blocks"`
	Size        int    `json:"size" jsonschema:"title=Size,description=Instructions per block"`
	Workers     int    `json:"workers" jsonschema:"title=Workers,description=Worker pool size"`
	MetricsAddr string `json:"metricsAddr" jsonschema:"title=Metrics Address,description=Prometheus listen address"`
}

var schemaCmd = &cobra.Command{
	Use:    "schema",
	Short:  "Generate JSON schema for the bench configuration and stats snapshot",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		reflector := new(jsonschema.Reflector)
		out := map[string]any{
			"config":   reflector.Reflect(&BenchConfig{}),
			"snapshot": reflector.Reflect(&translate.Snapshot{}),
		}
		bts, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal schema: %w", err)
		}
		fmt.Println(string(bts))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
