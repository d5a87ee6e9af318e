package cmd

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

var (
	appVersion string
	buildTime  string
)

// SetVersion sets version/build metadata and wires Cobra's --version flag.
func SetVersion(v, bt string) {
	appVersion = v
	buildTime = bt
	// Enable --version flag output via Cobra when Version is non-empty
	rootCmd.Version = v
}

// versionCmd prints detailed version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		v := appVersion
		if v == "" {
			v = "dev"
		}
		fmt.Printf("case-console %s\n", v)
		if buildTime != "" {
			fmt.Printf("Build Time: %s\n", buildTime)
		}
		for _, line := range buildInfoLines() {
			fmt.Println(line)
		}
	},
}

// buildInfoLines reports the module and VCS stamp embedded by the Go toolchain.
func buildInfoLines() []string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return nil
	}
	lines := []string{
		fmt.Sprintf("Module: %s", info.Main.Path),
		fmt.Sprintf("Go: %s", info.GoVersion),
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			lines = append(lines, fmt.Sprintf("Commit: %s", s.Value))
		case "vcs.time":
			lines = append(lines, fmt.Sprintf("Commit Time: %s", s.Value))
		}
	}
	return lines
}

func init() {
	rootCmd.AddCommand(versionCmd)
}