package coordinator

import (
	"errors"
	"fmt"
)

// ErrBusy is returned when Start or RunQuery is called while another
// operation is still in flight. At most one load chain and one query may run
// at a time.
var ErrBusy = errors.New("coordinator: operation already in flight")

// ErrSuperseded is returned from a Start whose results were discarded because
// a newer Start bumped the epoch before this one could commit.
var ErrSuperseded = errors.New("coordinator: superseded by a newer start")

// LoadStage identifies which step of the load chain failed.
type LoadStage string

const (
	StageRoot       LoadStage = "root"
	StageDefinition LoadStage = "definition"
)

// LoadError is a terminal failure of the load chain. The coordinator moves to
// Failed; a fresh Start is the only recovery.
type LoadError struct {
	Stage LoadStage
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading %s failed: %v", e.Stage, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ResolutionError reports the first missing link in the
// source → group → type → element lookup chain.
type ResolutionError struct {
	Link string // "source", "group", "type" or "element"
	Name string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolution failed: no %s named %q", e.Link, e.Name)
}

// PreconditionError is a local rejection of a RunQuery whose parameters are
// incomplete. The coordinator stays Ready.
type PreconditionError struct {
	Field string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("parameters not set: %s", e.Field)
}

// QueryError is a non-terminal failure of the domain query itself. The
// coordinator returns to Ready.
type QueryError struct {
	Err error
}

func (e *QueryError) Error() string { return fmt.Sprintf("trace failed: %v", e.Err) }

func (e *QueryError) Unwrap() error { return e.Err }

// SubRequestError is the failure of one fan-out unit within a join. It never
// aborts sibling sub-requests; the join collects it and completes regardless.
type SubRequestError struct {
	Group string
	Err   error
}

func (e *SubRequestError) Error() string {
	return fmt.Sprintf("fetch for group %q failed: %v", e.Group, e.Err)
}

func (e *SubRequestError) Unwrap() error { return e.Err }
