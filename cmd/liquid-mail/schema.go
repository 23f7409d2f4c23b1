package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/liquidmail/liquid-mail/internal/decisions"
	"github.com/liquidmail/liquid-mail/internal/lmerr"
	"github.com/liquidmail/liquid-mail/internal/topics"
)

// Schemas groups the structured-chat prompt schemas and the CLI output
// envelopes.
type Schemas struct {
	Prompts map[string]any `json:"prompts" yaml:"prompts"`
	Outputs map[string]any `json:"outputs" yaml:"outputs"`
}

func schemas() Schemas {
	return Schemas{
		Prompts: map[string]any{
			decisions.ExtractSchemaName:  decisions.ExtractSchema,
			decisions.ConflictSchemaName: decisions.ConflictSchema,
			topics.MergeSchemaName:       topics.MergeSchema,
		},
		Outputs: map[string]any{
			"ok_v1": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"ok":   map[string]any{"const": true},
					"data": map[string]any{},
				},
				"required":             []string{"ok", "data"},
				"additionalProperties": true,
			},
			"error_v1": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"ok": map[string]any{"const": false},
					"error": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"code":        map[string]any{"type": "string"},
							"message":     map[string]any{"type": "string"},
							"retryable":   map[string]any{"type": "boolean"},
							"suggestions": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
							"details":     map[string]any{"type": "object"},
						},
						"required":             []string{"code", "message", "retryable"},
						"additionalProperties": true,
					},
				},
				"required":             []string{"ok", "error"},
				"additionalProperties": false,
			},
		},
	}
}

var schemaCmd = &cobra.Command{
	Use:     "schema",
	GroupID: "setup",
	Short:   "Print the JSON schemas liquid-mail uses",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		s := schemas()
		if isJSON() {
			return outputJSON(okEnvelope{OK: true, Data: s})
		}
		switch format {
		case "json":
			data, err := json.MarshalIndent(s, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(stdout, "%s\n", data)
			return err
		case "yaml":
			data, err := yaml.Marshal(s)
			if err != nil {
				return fmt.Errorf("encoding YAML: %w", err)
			}
			_, err = stdout.Write(data)
			return err
		default:
			return lmerr.InvalidInput("unknown --format %q (expected json or yaml)", format)
		}
	},
}

var topicDemoCmd = &cobra.Command{
	Use:     "topic-demo <topic-id>...",
	GroupID: "setup",
	Short:   "Run the topic vote offline over a list of match topic ids",
	Example: `  liquid-mail topic-demo A A A A B`,
	Args:    cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		threshold, _ := cmd.Flags().GetFloat64("threshold")
		minHits, _ := cmd.Flags().GetInt("min-hits")
		choice := topics.ChooseTopic(args, threshold, minHits)
		return emit(choice, func() {
			chosen := choice.ChosenTopicID
			if chosen == "" {
				chosen = "(none)"
			}
			fmt.Fprintf(stdout, "chosen=%s dominance=%g\n", chosen, choice.Dominance)
		})
	},
}

func init() {
	schemaCmd.Flags().String("format", "json", "Output format in text mode: json or yaml")
	topicDemoCmd.Flags().Float64("threshold", 0.8, "Dominance required to choose a topic")
	topicDemoCmd.Flags().Int("min-hits", 2, "Matches the best topic needs")
	rootCmd.AddCommand(schemaCmd, topicDemoCmd)
}
