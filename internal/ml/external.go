package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"trajrisk/internal/dataset"

	"github.com/rs/zerolog/log"
)

const defaultExternalTimeout = 30 * time.Second

// ErrTimeout is returned when an external model command exceeds its timeout.
var ErrTimeout = errors.New("external model timed out")

// ScoreRequest is written to the external command's stdin.
type ScoreRequest struct {
	Columns []string    `json:"columns"`
	Rows    [][]float64 `json:"rows"`
}

// ScoreResponse is read from the external command's stdout.
type ScoreResponse struct {
	Scores []float64 `json:"scores"`
	Error  string    `json:"error,omitempty"`
}

// ExternalFamily delegates fitting and scoring to a command, typically a
// Python script wrapping a random survival forest or gradient-boosted
// survival ensemble. The command is invoked as
//
//	<command...> fit <dataset.csv> <model-path>
//	<command...> score <model-path>   (ScoreRequest on stdin)
type ExternalFamily struct {
	Command []string
	Timeout time.Duration
	WorkDir string
}

// Name implements Family.
func (f *ExternalFamily) Name() string { return FamilyExternal }

// Fit writes X and y as CSV into WorkDir and runs the trainer.
func (f *ExternalFamily) Fit(ctx context.Context, X *dataset.Table, y []dataset.Outcome) (RiskModel, error) {
	if len(f.Command) == 0 {
		return nil, fmt.Errorf("%w: no external command configured", ErrFit)
	}
	if X.Len() != len(y) {
		return nil, fmt.Errorf("%w: %d rows but %d outcomes", ErrFit, X.Len(), len(y))
	}

	workDir := f.WorkDir
	if workDir == "" {
		workDir = "."
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFit, err)
	}

	train := X.Clone()
	train.Columns = append(train.Columns, dataset.TargetColumns...)
	for i, row := range train.Rows {
		event := 0.0
		if y[i].Event {
			event = 1
		}
		train.Rows[i] = append(row, y[i].Time, event)
	}
	csvPath := filepath.Join(workDir, "external_train.csv")
	if err := dataset.WriteCSV(train, csvPath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFit, err)
	}

	modelPath, err := filepath.Abs(filepath.Join(workDir, fmt.Sprintf("external_model-%d.bin", time.Now().UnixNano())))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFit, err)
	}

	m := &ExternalModel{Command: f.Command, ModelPath: modelPath, Timeout: f.Timeout}
	if _, err := m.run(ctx, nil, "fit", csvPath, modelPath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFit, err)
	}

	log.Info().
		Strs("command", f.Command).
		Str("model_path", modelPath).
		Msg("External model trained")

	return m, nil
}

// Decode implements Family.
func (f *ExternalFamily) Decode(state json.RawMessage) (RiskModel, error) {
	var m ExternalModel
	if err := json.Unmarshal(state, &m); err != nil {
		return nil, fmt.Errorf("%w: external state: %v", ErrModelLoad, err)
	}
	if len(m.Command) == 0 || m.ModelPath == "" {
		return nil, fmt.Errorf("%w: external state needs command and model_path", ErrModelLoad)
	}
	if _, err := os.Stat(m.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	return &m, nil
}

// ExternalModel scores by running the external command once per call.
type ExternalModel struct {
	Command   []string      `json:"command"`
	ModelPath string        `json:"model_path"`
	Timeout   time.Duration `json:"timeout"`
}

// Family implements RiskModel.
func (m *ExternalModel) Family() string { return FamilyExternal }

// State implements RiskModel.
func (m *ExternalModel) State() (json.RawMessage, error) {
	return json.Marshal(m)
}

// Score implements RiskModel.
func (m *ExternalModel) Score(ctx context.Context, X *dataset.Table) ([]float64, error) {
	reqJSON, err := json.Marshal(ScoreRequest{Columns: X.Columns, Rows: X.Rows})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	stdout, err := m.run(ctx, reqJSON, "score", m.ModelPath)
	if err != nil {
		return nil, err
	}

	var resp ScoreResponse
	if err := json.Unmarshal(stdout, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w, stdout: %s", err, string(stdout))
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("external model error: %s", resp.Error)
	}
	if len(resp.Scores) != X.Len() {
		return nil, fmt.Errorf("expected %d scores, got %d", X.Len(), len(resp.Scores))
	}
	return resp.Scores, nil
}

func (m *ExternalModel) run(ctx context.Context, stdin []byte, args ...string) ([]byte, error) {
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = defaultExternalTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	argv := append(append([]string{}, m.Command[1:]...), args...)
	cmd := exec.CommandContext(ctx, m.Command[0], argv...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		log.Error().
			Err(err).
			Strs("command", m.Command).
			Strs("args", args).
			Str("stderr", stderr.String()).
			Dur("timeout", timeout).
			Bool("context_cancelled", ctx.Err() != nil).
			Msg("External model command failed")

		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %v", ErrTimeout, timeout)
		}
		if strings.Contains(stderr.String(), "No such file or directory") {
			return nil, fmt.Errorf("model file not accessible: %w", err)
		}
		return nil, fmt.Errorf("external command failed: %w, stderr: %s", err, stderr.String())
	}

	return stdout.Bytes(), nil
}
