package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cuemby/dcc/pkg/config"
	"github.com/cuemby/dcc/pkg/health"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Project configuration operations",
}

var projectValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a project definitions file",
	Long:  `Load a project YAML file and report buckets with no task lists or no bucket tasks before a peer is started against it. Bucket-group tags are not checked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")

		set, err := config.LoadProjectSet(path)
		if err != nil {
			return err
		}

		names := set.Names()
		if len(names) == 0 {
			return fmt.Errorf("%s defines no projects", path)
		}

		checkSourceURL, _ := cmd.Flags().GetBool("check-source-url")

		problems := 0
		for _, name := range names {
			project, _ := set.Get(name)
			fmt.Printf("project %q: %d buckets\n", name, len(project.BucketNames))
			for _, bucket := range project.BucketNames {
				lists, ok := project.TaskLists[bucket]
				if !ok {
					fmt.Printf("  ✗ bucket %q has no task lists\n", bucket)
					problems++
					continue
				}
				if len(lists.BucketTasks) == 0 {
					fmt.Printf("  ✗ bucket %q has no bucket tasks\n", bucket)
					problems++
				}
			}

			if checkSourceURL && (strings.HasPrefix(project.SourceURL, "http://") || strings.HasPrefix(project.SourceURL, "https://")) {
				result := health.NewHTTPChecker(project.SourceURL).Check(cmd.Context())
				if !result.Healthy {
					fmt.Printf("  ✗ source URL unreachable: %s\n", result.Message)
					problems++
				} else {
					fmt.Printf("  ✓ source URL reachable: %s\n", result.Message)
				}
			}
		}

		if problems > 0 {
			return fmt.Errorf("%d problem(s) found in %s", problems, path)
		}
		fmt.Println("✓ valid")
		return nil
	},
}

func init() {
	projectCmd.AddCommand(projectValidateCmd)
	projectValidateCmd.Flags().String("config", "projects.yaml", "Project definitions file")
	projectValidateCmd.Flags().Bool("check-source-url", false, "Also probe each http(s) source URL for reachability")
}
