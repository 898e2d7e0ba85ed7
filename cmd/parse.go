package main

import (
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/multiplier-cli/internal/model"
	"github.com/sells-group/multiplier-cli/internal/multiplier"
)

// parseOutput is the extraction report printed by the parse command.
type parseOutput struct {
	Source      model.SourceOrder `json:"source"`
	Tokens      []string          `json:"tokens"`
	Multipliers []float64         `json:"multipliers"`
	Normalized  []float64         `json:"normalized"`
	Discarded   int               `json:"discarded_tokens"`
}

var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Extract multipliers from text without running the model",
	RunE: func(cmd *cobra.Command, _ []string) error {
		text, _ := cmd.Flags().GetString("text")
		source, _ := cmd.Flags().GetString("source")

		src, err := model.ParseSourceOrder(source)
		if err != nil {
			return err
		}
		return runParse(os.Stdout, text, src)
	},
}

func runParse(w io.Writer, text string, src model.SourceOrder) error {
	ex, err := multiplier.Parse(text, src)
	if err != nil && !errors.Is(err, multiplier.ErrNoMultipliers) {
		return err
	}

	out := parseOutput{
		Source:      src,
		Tokens:      multiplier.CorrectTokens(multiplier.Tokenize(text)),
		Multipliers: ex.Values,
		Normalized:  multiplier.Normalize(ex.Values),
		Discarded:   ex.Discarded,
	}
	if out.Multipliers == nil {
		out.Multipliers = []float64{}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(out); encErr != nil {
		return eris.Wrap(encErr, "parse: encode")
	}
	return err
}

func init() {
	parseCmd.Flags().String("text", "", "text to parse")
	parseCmd.Flags().String("source", "edited", "source order: captured or edited")
	rootCmd.AddCommand(parseCmd)
}
