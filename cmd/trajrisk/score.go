package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"trajrisk/internal/ml"
)

var (
	scoreDecision bool
	scoreRemote   string
	scoreMeta     string
	scoreTimeout  time.Duration
)

// scoreCmd keeps stdout to a single value: the risk score, or the decision
// with --decision.
var scoreCmd = &cobra.Command{
	Use:   "score <features.json> [model.json]",
	Short: "Score one feature record; prints exactly one number",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read feature record: %w", err)
		}

		var result ml.Result
		if scoreRemote != "" {
			result, err = ml.NewRemoteScorer(scoreRemote, scoreTimeout).ScoreJSON(cmd.Context(), data)
		} else {
			var scorer *ml.Scorer
			scorer, err = loadScorerFromArgs(args)
			if err != nil {
				return err
			}
			result, err = scorer.ScoreJSON(cmd.Context(), data)
		}
		if err != nil {
			return err
		}

		if scoreDecision {
			_, err = fmt.Fprintln(os.Stdout, result.Decision)
			return err
		}
		_, err = fmt.Fprintln(os.Stdout, strconv.FormatFloat(result.Risk, 'g', -1, 64))
		return err
	},
}

func init() {
	scoreCmd.Flags().BoolVar(&scoreDecision, "decision", false, "Print accept/reject instead of the score")
	scoreCmd.Flags().StringVar(&scoreRemote, "remote", "", "Score against a running server at this base URL")
	scoreCmd.Flags().StringVar(&scoreMeta, "meta", "", "Metadata path (default: derived from the model path)")
	scoreCmd.Flags().DurationVar(&scoreTimeout, "timeout", 5*time.Second, "Remote request timeout")
}

// loadScorerFromArgs loads the artifact named on the command line, or the
// active artifact of the configured family.
func loadScorerFromArgs(args []string) (*ml.Scorer, error) {
	if len(args) < 2 {
		return ml.LoadScorer(settings.ModelDir, settings.Family, nil)
	}

	modelPath := args[1]
	metaPath := scoreMeta
	if metaPath == "" {
		if !strings.HasSuffix(modelPath, "_model.json") {
			return nil, fmt.Errorf("%w: cannot derive metadata path from %s, use --meta", ml.ErrModelLoad, modelPath)
		}
		metaPath = strings.TrimSuffix(modelPath, "_model.json") + "_meta.json"
	}

	artifact, err := ml.LoadArtifactFiles(modelPath, metaPath)
	if err != nil {
		return nil, err
	}
	return ml.NewScorer(artifact, nil), nil
}
