package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/multiplier-cli/internal/model"
	"github.com/sells-group/multiplier-cli/internal/pipeline"
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Predict the next multiplier from text or a screenshot",
	Long:  "Runs the full pipeline once. --text is treated as user-edited (chronological) input; --image is OCR'd and treated as captured (newest first).",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		text, _ := cmd.Flags().GetString("text")
		image, _ := cmd.Flags().GetString("image")
		format, _ := cmd.Flags().GetString("format")

		if (text == "") == (image == "") {
			return eris.New("predict: exactly one of --text or --image is required")
		}
		if format != "json" && format != "yaml" {
			return eris.Errorf("predict: unsupported format %q", format)
		}

		env, err := initEnv(ctx, "predict")
		if err != nil {
			return err
		}
		defer env.Close()

		var res *model.Result
		if image != "" {
			res, err = env.Service.AnalyzeImage(ctx, image)
		} else {
			res, err = env.Service.Analyze(ctx, pipeline.Input{Text: text, Source: model.SourceUserEditedChronological})
		}
		if err != nil {
			return eris.Wrap(err, "predict")
		}

		return writeResult(os.Stdout, res, format)
	},
}

// writeResult encodes res as indented JSON or YAML.
func writeResult(w io.Writer, res *model.Result, format string) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(res); err != nil {
			return eris.Wrap(err, "predict: encode yaml")
		}
		return eris.Wrap(enc.Close(), "predict: close yaml encoder")
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(res), "predict: encode json")
	}
}

func init() {
	predictCmd.Flags().String("text", "", "multiplier text, oldest first")
	predictCmd.Flags().String("image", "", "path to a screenshot of the multiplier history")
	predictCmd.Flags().String("format", "json", "output format: json or yaml")
	rootCmd.AddCommand(predictCmd)
}
