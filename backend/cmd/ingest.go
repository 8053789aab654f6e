package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bluebridge/termsheet-ingest/backend/model"
	"github.com/bluebridge/termsheet-ingest/backend/pipeline"
	"github.com/bluebridge/termsheet-ingest/backend/service"
)

var ingestProgress bool

var ingestCmd = &cobra.Command{
	Use:   "ingest <file.pdf>",
	Short: "Run the extraction pipeline on a local PDF",
	Long: `Ingest extracts, validates and persists a termsheet PDF, then prints the
extraction response as JSON. The exit status is non-zero when any stage fails,
including validation.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVarP(&ingestProgress, "progress", "p", false, "report stage progress on stderr")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if err := cfg.ValidatePipeline(); err != nil {
		return err
	}

	up, err := readUpload(args[0])
	if err != nil {
		return err
	}

	comps, err := buildComponents(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer comps.Close()

	if ingestProgress {
		return streamIngest(cmd, comps.orchestrator, up)
	}

	resp, err := comps.orchestrator.RunSync(cmd.Context(), up)
	if err != nil {
		if f, ok := pipeline.AsFailure(err); ok && f.Kind == pipeline.KindValidation {
			return validationError(cmd.OutOrStdout(), f.Response)
		}
		return err
	}
	return printJSON(cmd.OutOrStdout(), resp)
}

// streamRunner is the streaming half of the pipeline
type streamRunner interface {
	Stream(ctx context.Context, up pipeline.Upload) <-chan pipeline.ProgressEvent
}

func streamIngest(cmd *cobra.Command, runner streamRunner, up pipeline.Upload) error {
	for event := range runner.Stream(cmd.Context(), up) {
		switch event.Stage {
		case pipeline.StageComplete:
			return printJSON(cmd.OutOrStdout(), event.Data)
		case pipeline.StageValidationFailed:
			return validationError(cmd.OutOrStdout(), event.Data)
		case pipeline.StageError:
			return errors.New(event.Message)
		default:
			fmt.Fprintf(cmd.ErrOrStderr(), "[%3d%%] %s\n", event.Progress, event.Stage)
		}
	}
	return errors.New("extraction stream ended without a result")
}

func readUpload(path string) (pipeline.Upload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return pipeline.Upload{}, err
	}
	if len(data) == 0 {
		return pipeline.Upload{}, fmt.Errorf("%s: %w", path, service.ErrEmptyDocument)
	}
	if !service.IsPDF(data) {
		return pipeline.Upload{}, fmt.Errorf("%s is not a PDF", path)
	}
	return pipeline.Upload{Filename: filepath.Base(path), Data: data}, nil
}

func validationError(w io.Writer, resp *model.ExtractionResponse) error {
	if resp == nil {
		return errors.New("validation failed")
	}
	if err := printJSON(w, resp); err != nil {
		return err
	}
	return fmt.Errorf("validation failed with %d error(s)", len(resp.Validation.Errors()))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
