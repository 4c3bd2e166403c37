package derive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"

	"gallery_planner/internal/domain/models"

	"github.com/fxamacker/cbor/v2"
)

const (
	errKindNone       = ""
	errKindUnreadable = "unreadable"
	errKindFailed     = "failed"
)

// Response is the single CBOR frame a derive_worker process writes to stdout.
type Response struct {
	Result  Result `cbor:"1,keyasint"`
	ErrKind string `cbor:"2,keyasint,omitempty"`
	Err     string `cbor:"3,keyasint,omitempty"`
}

// ExecWorker runs every task in a fresh derive_worker process. The process is
// killed when ctx is done, so a hung decoder cannot outlive its deadline.
type ExecWorker struct {
	log  *slog.Logger
	path string
	args []string
}

func NewExecWorker(log *slog.Logger, path string, args ...string) *ExecWorker {
	return &ExecWorker{log: log, path: path, args: args}
}

func (w *ExecWorker) Run(ctx context.Context, task Task) (Result, error) {
	const op = "derive.ExecWorker.Run"

	log := w.log.With(slog.String("op", op), slog.String("source", task.Source))

	req, err := cbor.Marshal(task)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, w.path, w.args...)
	cmd.Stdin = bytes.NewReader(req)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{}, fmt.Errorf("%s: %w", op, ctxErr)
	}

	var resp Response
	if err := cbor.NewDecoder(&stdout).Decode(&resp); err != nil {
		log.Warn("derive worker produced no response",
			slog.String("stderr", stderr.String()),
			slog.Any("exit", runErr),
		)
		return Result{}, fmt.Errorf("%s: %w: %v", op, models.ErrTransientWorker, errors.Join(runErr, err))
	}

	switch resp.ErrKind {
	case errKindNone:
		return resp.Result, nil
	case errKindUnreadable:
		return Result{}, fmt.Errorf("%s: %w: %s", op, models.ErrUnreadableImage, resp.Err)
	default:
		return Result{}, fmt.Errorf("%s: %w: %s", op, models.ErrTransientWorker, resp.Err)
	}
}

// Serve reads one Task from in, processes it and writes a Response to out.
// It is the body of the derive_worker command.
func Serve(ctx context.Context, in io.Reader, out io.Writer, proc TaskProcessor) error {
	const op = "derive.Serve"

	var task Task
	if err := cbor.NewDecoder(in).Decode(&task); err != nil {
		return fmt.Errorf("%s: decode task: %w", op, err)
	}

	var resp Response
	res, err := proc.Process(ctx, task)
	switch {
	case err == nil:
		resp.Result = res
	case errors.Is(err, models.ErrUnreadableImage):
		resp.ErrKind, resp.Err = errKindUnreadable, err.Error()
	default:
		resp.ErrKind, resp.Err = errKindFailed, err.Error()
	}

	if err := cbor.NewEncoder(out).Encode(resp); err != nil {
		return fmt.Errorf("%s: encode response: %w", op, err)
	}

	return nil
}
