package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bnema/archectl/internal/ui/styles"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change settings",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		flat := map[string]any{}
		flatten("", cfg.Settings(), flat)

		keys := make([]string, 0, len(flat))
		for k := range flat {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			v := fmt.Sprint(flat[k])
			if k == "api.key" && len(v) > 12 {
				v = v[:12] + "..."
			}
			fmt.Printf("%s = %s\n", styles.AddonName.Render(k), v)
		}

		addonDir, backupDir, err := cfg.InstallPaths()
		if err == nil {
			fmt.Println()
			fmt.Println(styles.MutedText.Render("addon dir  -> " + addonDir))
			fmt.Println(styles.MutedText.Render("backup dir -> " + backupDir))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change a setting and save it",
	Example: `  archectl config set addon_path "Documents/ArcheRage/Addon"
  archectl config set catalog.cache_ttl 30m`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Set(args[0], args[1]); err != nil {
			return err
		}
		fmt.Println(styles.FormatSuccess(fmt.Sprintf("%s = %s", args[0], args[1])))
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(cfg.File())
	},
}

func flatten(prefix string, m map[string]any, out map[string]any) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := v.(map[string]any); ok {
			flatten(key, sub, out)
			continue
		}
		out[strings.ToLower(key)] = v
	}
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd, configPathCmd)
	rootCmd.AddCommand(configCmd)
}
