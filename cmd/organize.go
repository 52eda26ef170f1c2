package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pinaxlabs/organizer/internal/entity"
	"github.com/pinaxlabs/organizer/internal/llm"
	"github.com/pinaxlabs/organizer/internal/organize"
	"github.com/pinaxlabs/organizer/types"
)

var (
	organizeCustomPrompt string
	organizeGuidance     string
)

var organizeCmd = &cobra.Command{
	Use:   "organize <directory>",
	Short: "Organize a local directory in one shot",
	Long: `Reads the files of a local directory, asks the model for a grouping
plan, and prints the sanitized plan as JSON. Nothing is moved or
written; the plan is advisory.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOrganize(cmd.Context(), args[0])
	},
}

func init() {
	organizeCmd.Flags().StringVar(&organizeCustomPrompt, "prompt", "", "replace the built-in system prompt")
	organizeCmd.Flags().StringVar(&organizeGuidance, "guidance", "", "extra grouping guidance appended to the user prompt")
	rootCmd.AddCommand(organizeCmd)
}

func runOrganize(ctx context.Context, dir string) error {
	cfg := GetConfig()

	files, err := readLocalDirectory(dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no organizable files in %s", dir)
	}

	req := &types.OrganizeRequest{
		DirectoryPath:    dir,
		Files:            files,
		CustomPrompt:     organizeCustomPrompt,
		StrategyGuidance: organizeGuidance,
	}

	svc := organize.NewService(llm.NewClient(cfg.LLM), cfg.LLM)
	plan, err := svc.Organize(ctx, req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(plan)
}

// readLocalDirectory collects the organizable files of dir, classified
// the same way the entity fetcher classifies store components.
func readLocalDirectory(dir string) ([]types.FileInput, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}

	var files []types.FileInput
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		kind := entity.OrganizableKind(e.Name())
		if kind == "" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}

		if kind == types.FileKindRef {
			input, err := entity.BuildRefInput(e.Name(), data)
			if err != nil {
				fmt.Fprintf(os.Stderr, "skipping %s: %v\n", e.Name(), err)
				continue
			}
			files = append(files, *input)
			continue
		}

		files = append(files, types.FileInput{
			Name:    e.Name(),
			Kind:    types.FileKindText,
			Content: string(data),
			Size:    int64(len(data)),
		})
	}
	return files, nil
}
