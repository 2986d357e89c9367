package bulkload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"shopload/loaderr"
)

func step(name string, src Source, batchSize int) Step {
	return Step{Name: name, Table: strings.ToUpper(name), Columns: []string{"COL1"}, BatchSize: batchSize, Source: src}
}

func TestRun_Success_NoRows(t *testing.T) {
	repo := &MockRepo{
		InsertBatchFunc: func(ctx context.Context, b *Batch) error {
			return errors.New("should not be called for empty source")
		},
	}

	report, err := New(Config{Repo: repo}).Run(context.Background(), step("empty", &MockSource{}, 10))
	require.NoError(t, err)
	assert.Equal(t, 0, report.Rows())
	assert.Equal(t, 0, report.Steps[0].Batches)
}

// Concatenating the emitted batches reproduces the source in order, and every
// batch except the last has exactly the configured size.
func TestRun_BatchesConcatenateToSource(t *testing.T) {
	for _, tc := range []struct{ rows, size int }{
		{1, 1}, {9, 10}, {10, 10}, {11, 10}, {25, 5}, {26, 5}, {7, 3}, {100, 1},
	} {
		t.Run(fmt.Sprintf("rows=%d/size=%d", tc.rows, tc.size), func(t *testing.T) {
			var batches [][]interface{}
			repo := &MockRepo{
				InsertBatchFunc: func(ctx context.Context, b *Batch) error {
					batches = append(batches, b.Column(0))
					return nil
				},
			}

			report, err := New(Config{Repo: repo}).Run(context.Background(), step("nums", intSource(tc.rows), tc.size))
			require.NoError(t, err)

			var all []interface{}
			for i, b := range batches {
				if i < len(batches)-1 {
					assert.Len(t, b, tc.size, "batch %d", i+1)
				} else {
					assert.GreaterOrEqual(t, len(b), 1)
					assert.LessOrEqual(t, len(b), tc.size)
				}
				all = append(all, b...)
			}
			require.Len(t, all, tc.rows)
			for i, v := range all {
				assert.Equal(t, i+1, v)
			}
			assert.Equal(t, (tc.rows+tc.size-1)/tc.size, report.Steps[0].Batches)
			assert.Equal(t, tc.rows, report.Rows())
		})
	}
}

func TestRun_StateTransitions(t *testing.T) {
	var states []State
	p := New(Config{
		Repo:         &MockRepo{},
		OnTransition: func(from, to State) { states = append(states, to) },
	})
	assert.Equal(t, StateIdle, p.State())

	_, err := p.Run(context.Background(), step("nums", intSource(3), 2))
	require.NoError(t, err)
	assert.Equal(t, []State{StateConnected, StatePreparing, StateStreaming, StateFinalizing, StateClosed}, states)
	assert.Equal(t, StateClosed, p.State())

	_, err = p.Run(context.Background(), step("nums", intSource(3), 2))
	assert.ErrorContains(t, err, "already used")
}

func TestRun_TriggersSuspendedAroundStreaming(t *testing.T) {
	repo := &MockRepo{}
	triggers := []Trigger{{Name: "trg_a", Table: "A"}, {Name: "trg_b", Table: "B"}}

	_, err := New(Config{Repo: repo, Triggers: triggers}).Run(context.Background(),
		step("a", intSource(2), 5), step("b", intSource(1), 5))
	require.NoError(t, err)
	assert.Equal(t, []string{"disable trg_a", "disable trg_b", "insert A", "insert B", "enable trg_b", "enable trg_a"}, repo.Calls())
}

func TestRun_TriggersRestoredOnInsertFailure(t *testing.T) {
	repo := &MockRepo{
		InsertBatchFunc: func(ctx context.Context, b *Batch) error {
			if b.Seq == 2 {
				return errors.New("FOREIGN KEY constraint failed")
			}
			return nil
		},
	}
	var states []State
	p := New(Config{
		Repo:         repo,
		Triggers:     []Trigger{{Name: "trg_AfterOrderItem_UpdateStock", Table: "OrderItem"}},
		OnTransition: func(from, to State) { states = append(states, to) },
	})

	report, err := p.Run(context.Background(), step("order_items", intSource(10), 4))
	require.Error(t, err)
	assert.True(t, loaderr.Is(err, loaderr.KindConstraintViolation))
	assert.Contains(t, err.Error(), "step order_items")
	assert.Equal(t, 4, report.Steps[0].Rows)

	calls := repo.Calls()
	assert.Equal(t, "enable trg_AfterOrderItem_UpdateStock", calls[len(calls)-1])
	assert.Equal(t, []State{StateConnected, StatePreparing, StateStreaming, StateFinalizing, StateClosed}, states)
}

func TestRun_RestoreFailureJoinedWithStreamingError(t *testing.T) {
	repo := &MockRepo{
		InsertBatchFunc: func(ctx context.Context, b *Batch) error { return errors.New("insert boom") },
		EnableTriggerFunc: func(ctx context.Context, t Trigger) error {
			return errors.New("enable boom")
		},
	}

	_, err := New(Config{Repo: repo, Triggers: []Trigger{{Name: "t1", Table: "X"}}}).
		Run(context.Background(), step("x", intSource(1), 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert boom")
	assert.Contains(t, err.Error(), "enable boom")
	assert.Equal(t, 3, loaderr.ExitCode(err))
}

func TestRun_MalformedRowAborts(t *testing.T) {
	inserts := 0
	repo := &MockRepo{
		InsertBatchFunc: func(ctx context.Context, b *Batch) error { inserts++; return nil },
	}
	src := intSource(5)
	src.ConvertFunc = func(raw interface{}) ([]interface{}, error) {
		if raw.(int) == 4 {
			return nil, errors.New("bad value")
		}
		return []interface{}{raw}, nil
	}

	_, err := New(Config{Repo: repo, Triggers: []Trigger{{Name: "t", Table: "NUMS"}}}).
		Run(context.Background(), step("nums", src, 2))
	require.Error(t, err)
	assert.True(t, loaderr.Is(err, loaderr.KindMalformedRow))
	assert.Contains(t, err.Error(), "nums line 5")
	assert.Equal(t, 1, inserts, "only the batch before the bad row is committed")
	assert.Equal(t, "enable t", repo.Calls()[len(repo.Calls())-1])
}

func TestRun_WrongRowWidthIsMalformed(t *testing.T) {
	src := intSource(1)
	src.ConvertFunc = func(raw interface{}) ([]interface{}, error) { return []interface{}{1, 2}, nil }

	_, err := New(Config{Repo: &MockRepo{}}).Run(context.Background(), step("nums", src, 2))
	assert.True(t, loaderr.Is(err, loaderr.KindMalformedRow))
}

func TestRun_ValidationFailsBeforeTriggers(t *testing.T) {
	repo := &MockRepo{}
	src := &MockSource{ValidateFunc: func(ctx context.Context) error { return errors.New("header mismatch") }}

	_, err := New(Config{Repo: repo, Triggers: []Trigger{{Name: "t", Table: "X"}}}).
		Run(context.Background(), step("x", src, 2))
	assert.ErrorContains(t, err, "source validation failed: header mismatch")
	assert.Empty(t, repo.Calls())
}

func TestRun_PingFailureIsConnectionError(t *testing.T) {
	repo := &pingingRepo{
		MockRepo: &MockRepo{},
		PingFunc: func(ctx context.Context) error { return errors.New("dial tcp 127.0.0.1:1433: connection refused") },
	}
	var states []State
	_, err := New(Config{Repo: repo, OnTransition: func(_, to State) { states = append(states, to) }}).
		Run(context.Background(), step("x", intSource(1), 1))
	assert.True(t, loaderr.Is(err, loaderr.KindConnection))
	assert.Equal(t, 4, loaderr.ExitCode(err))
	assert.Equal(t, []State{StateClosed}, states)
}

func TestRun_MissingTable(t *testing.T) {
	repo := &pingingRepo{
		MockRepo:        &MockRepo{},
		TableExistsFunc: func(ctx context.Context, table string) (bool, error) { return table != "CART", nil },
	}
	_, err := New(Config{Repo: repo}).Run(context.Background(), step("users", intSource(1), 1), step("cart", intSource(1), 1))
	assert.ErrorContains(t, err, "table CART does not exist")
	assert.Empty(t, repo.Calls())
}

func TestRun_ConfigValidation(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		steps []Step
		want  string
	}{
		{"no repo", Config{}, []Step{step("x", intSource(1), 1)}, "repository (Repo) is required"},
		{"no steps", Config{Repo: &MockRepo{}}, nil, "at least one step"},
		{"no table", Config{Repo: &MockRepo{}}, []Step{{Name: "x", Columns: []string{"A"}, BatchSize: 1, Source: intSource(1)}}, "table name is required"},
		{"no columns", Config{Repo: &MockRepo{}}, []Step{{Name: "x", Table: "X", BatchSize: 1, Source: intSource(1)}}, "target columns are required"},
		{"zero batch", Config{Repo: &MockRepo{}}, []Step{step("x", intSource(1), 0)}, "batch size must be positive"},
		{"no source", Config{Repo: &MockRepo{}}, []Step{{Name: "x", Table: "X", Columns: []string{"A"}, BatchSize: 1}}, "source is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg).Run(context.Background(), tt.steps...)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestRun_CancelledAtBatchBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var seen []int
	repo := &MockRepo{
		InsertBatchFunc: func(ctx context.Context, b *Batch) error {
			seen = append(seen, b.Seq)
			if b.Seq == 2 {
				cancel()
			}
			return nil
		},
	}

	_, err := New(Config{Repo: repo, Triggers: []Trigger{{Name: "t", Table: "NUMS"}}}).
		Run(ctx, step("nums", intSource(10), 2))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []int{1, 2}, seen)
	assert.Equal(t, "enable t", repo.Calls()[len(repo.Calls())-1], "triggers restored after cancellation")
}

func TestRun_StatementTimeout(t *testing.T) {
	repo := &MockRepo{
		InsertBatchFunc: func(ctx context.Context, b *Batch) error {
			deadline, ok := ctx.Deadline()
			if !ok {
				return errors.New("no deadline on statement context")
			}
			if time.Until(deadline) > time.Minute {
				return errors.New("deadline too far")
			}
			<-ctx.Done()
			return ctx.Err()
		},
	}

	_, err := New(Config{Repo: repo, StatementTimeout: 10 * time.Millisecond}).
		Run(context.Background(), step("nums", intSource(1), 1))
	require.Error(t, err)
	assert.True(t, loaderr.Is(err, loaderr.KindConnection))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// The loader is not idempotent: loading the same files twice doubles every count.
func TestRun_TwiceDoublesRowCounts(t *testing.T) {
	store := newMemStore()
	users, cart := intSource(7), intSource(3)

	for i := 0; i < 2; i++ {
		_, err := New(Config{Repo: store}).Run(context.Background(), step("users", users, 3), step("cart", cart, 2))
		require.NoError(t, err)
	}
	assert.Equal(t, 14, store.count("USERS"))
	assert.Equal(t, 6, store.count("CART"))
}

func TestRun_ResumeSkipsCommittedRows(t *testing.T) {
	store := newMemStore()
	insert := store.InsertBatchFunc
	fail := true
	store.InsertBatchFunc = func(ctx context.Context, b *Batch) error {
		if fail && b.Table == "ORDERS" && b.Seq == 3 {
			return errors.New("deadlock victim")
		}
		return insert(ctx, b)
	}
	cp := memCheckpoints{}
	cfg := Config{Repo: store, Checkpoints: cp, RunID: "orders"}

	_, err := New(cfg).Run(context.Background(), step("orders", intSource(10), 4))
	require.Error(t, err)
	assert.Equal(t, 8, cp["orders.orders"])
	assert.Equal(t, 8, store.count("ORDERS"))

	fail = false
	report, err := New(cfg).Run(context.Background(), step("orders", intSource(10), 4))
	require.NoError(t, err)
	assert.Equal(t, 8, report.Steps[0].Skipped)
	assert.Equal(t, 2, report.Steps[0].Rows)
	assert.Equal(t, 10, store.count("ORDERS"))
	for i, row := range store.tables["ORDERS"] {
		assert.Equal(t, i+1, row[0])
	}
	assert.Empty(t, cp, "checkpoints cleared after a successful run")
}

// Two pipelines run as one resumable load: when the second fails, a rerun must
// not load the first one again.
func TestRun_KeepCheckpointsAcrossPipelines(t *testing.T) {
	store := newMemStore()
	insert := store.InsertBatchFunc
	fail := true
	store.InsertBatchFunc = func(ctx context.Context, b *Batch) error {
		if fail && b.Table == "CART" {
			return errors.New("foreign key violation")
		}
		return insert(ctx, b)
	}
	cp := memCheckpoints{}
	products := []Step{step("products", intSource(10), 4)}
	cart := []Step{step("users", intSource(5), 2), step("cart", intSource(3), 2)}

	load := func() error {
		if _, err := New(Config{Repo: store, Checkpoints: cp, RunID: "categories-products", KeepCheckpoints: true}).
			Run(context.Background(), products...); err != nil {
			return err
		}
		if _, err := New(Config{Repo: store, Checkpoints: cp, RunID: "users-cart", KeepCheckpoints: true}).
			Run(context.Background(), cart...); err != nil {
			return err
		}
		require.NoError(t, ClearCheckpoints(cp, "categories-products", products))
		return ClearCheckpoints(cp, "users-cart", cart)
	}

	require.Error(t, load())
	assert.Equal(t, 10, cp["categories-products.products"], "kept after the plan succeeded")
	assert.Equal(t, 5, cp["users-cart.users"])

	fail = false
	require.NoError(t, load())
	assert.Equal(t, 10, store.count("PRODUCTS"))
	assert.Equal(t, 5, store.count("USERS"))
	assert.Equal(t, 3, store.count("CART"))
	assert.Empty(t, cp)
}

// failingSave fails Save for one key after the batch it follows has committed.
type failingSave struct {
	memCheckpoints
	failAt int
}

func (f failingSave) Save(key string, rows int) error {
	if rows == f.failAt {
		return errors.New("disk full")
	}
	return f.memCheckpoints.Save(key, rows)
}

// The checkpoint trails the commit: when it cannot be saved, a resume replays
// the last committed batch.
func TestRun_CheckpointSavedAfterCommit(t *testing.T) {
	store := newMemStore()
	cp := memCheckpoints{}

	_, err := New(Config{Repo: store, Checkpoints: failingSave{cp, 8}}).
		Run(context.Background(), step("orders", intSource(10), 4))
	require.Error(t, err)
	assert.ErrorContains(t, err, "batch 2 committed but checkpoint failed")
	assert.Equal(t, 8, store.count("ORDERS"), "batch 2 is in the store")
	assert.Equal(t, 4, cp["orders"], "checkpoint still at batch 1")

	report, err := New(Config{Repo: store, Checkpoints: cp}).
		Run(context.Background(), step("orders", intSource(10), 4))
	require.NoError(t, err)
	assert.Equal(t, 4, report.Steps[0].Skipped)
	assert.Equal(t, 14, store.count("ORDERS"), "rows 5-8 inserted twice")
}

func TestRun_ProgressAndThrottle(t *testing.T) {
	inserted := 0
	repo := &MockRepo{InsertBatchFunc: func(ctx context.Context, b *Batch) error { inserted += b.Len(); return nil }}

	_, err := New(Config{
		Repo:          repo,
		ProgressEvery: 5,
		Limiter:       rate.NewLimiter(rate.Inf, 1),
	}).Run(context.Background(), step("nums", intSource(12), 3))
	require.NoError(t, err)
	assert.Equal(t, 12, inserted)
}

func TestRun_ReadErrorPropagates(t *testing.T) {
	calls := 0
	src := &MockSource{NextFunc: func(ctx context.Context) (interface{}, error) {
		calls++
		if calls == 2 {
			return nil, io.ErrUnexpectedEOF
		}
		return calls, nil
	}}
	_, err := New(Config{Repo: &MockRepo{}}).Run(context.Background(), step("x", src, 5))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.ErrorContains(t, err, "read line failed")
}
