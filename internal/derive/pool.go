package derive

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"gallery_planner/internal/domain/models"
	"gallery_planner/internal/lib/logger/sl"
)

type job struct {
	ctx   context.Context
	task  Task
	reply chan reply
}

type reply struct {
	res Result
	err error
}

// Pool runs tasks on a fixed number of goroutines. A panicking task is
// recovered and reported as models.ErrTransientWorker; the pool keeps serving.
type Pool struct {
	log   *slog.Logger
	proc  TaskProcessor
	jobs  chan job
	wg    sync.WaitGroup
	once  sync.Once
	close chan struct{}
}

func NewPool(log *slog.Logger, proc TaskProcessor, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}

	p := &Pool{
		log:   log,
		proc:  proc,
		jobs:  make(chan job),
		close: make(chan struct{}),
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.loop()
	}

	return p
}

func (p *Pool) loop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.close:
			return
		case j := <-p.jobs:
			res, err := p.process(j)
			// reply буферизован: ушедший по таймауту вызывающий не блокирует воркер
			j.reply <- reply{res: res, err: err}
		}
	}
}

func (p *Pool) process(j job) (res Result, err error) {
	const op = "derive.Pool.process"

	defer func() {
		if r := recover(); r != nil {
			p.log.Error("derivative worker panicked",
				slog.String("op", op),
				slog.String("source", j.task.Source),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			if rmErr := RemoveOutputs(j.task); rmErr != nil {
				p.log.Warn("failed to remove partial outputs", slog.String("op", op), sl.Err(rmErr))
			}
			res, err = Result{}, fmt.Errorf("%s: %w: panic: %v", op, models.ErrTransientWorker, r)
		}
	}()

	if err := j.ctx.Err(); err != nil {
		return Result{}, err
	}

	return p.proc.Process(j.ctx, j.task)
}

// Run queues the task and waits for its result or for ctx to finish.
func (p *Pool) Run(ctx context.Context, task Task) (Result, error) {
	const op = "derive.Pool.Run"

	j := job{ctx: ctx, task: task, reply: make(chan reply, 1)}

	select {
	case <-ctx.Done():
		return Result{}, fmt.Errorf("%s: %w", op, ctx.Err())
	case <-p.close:
		return Result{}, fmt.Errorf("%s: %w: pool closed", op, models.ErrTransientWorker)
	case p.jobs <- j:
	}

	select {
	case <-ctx.Done():
		return Result{}, fmt.Errorf("%s: %w", op, ctx.Err())
	case r := <-j.reply:
		if r.err != nil {
			return Result{}, fmt.Errorf("%s: %w", op, r.err)
		}
		return r.res, nil
	}
}

// Close stops accepting tasks and waits for running ones.
func (p *Pool) Close() {
	p.once.Do(func() {
		close(p.close)
	})
	p.wg.Wait()
}
