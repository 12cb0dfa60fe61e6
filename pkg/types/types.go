// ABOUTME: Core types and interfaces for the Loom workflow engine
// ABOUTME: Defines the value model, task spec/result shapes, and the ports used across packages

package types

import (
	"context"
	"fmt"
	"time"
)

// Kind identifies the dynamic type carried by a Value.
type Kind string

const (
	KindNull   Kind = "null"
	KindBool   Kind = "bool"
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindString Kind = "string"
	KindList   Kind = "list"
	KindMap    Kind = "map"
)

// Value is a tagged variant over {null, bool, int, float, string, list, map},
// per the engine's need to preserve types through interpolation and produce
// a deterministic canonical serialization for cache fingerprints.
type Value struct {
	Kind Kind
	Bool bool
	Int  int64
	Flt  float64
	Str  string
	List []Value
	Map  map[string]Value
}

func Null() Value                { return Value{Kind: KindNull} }
func NewBool(b bool) Value       { return Value{Kind: KindBool, Bool: b} }
func NewInt(i int64) Value       { return Value{Kind: KindInt, Int: i} }
func NewFloat(f float64) Value   { return Value{Kind: KindFloat, Flt: f} }
func NewString(s string) Value   { return Value{Kind: KindString, Str: s} }
func NewList(v []Value) Value    { return Value{Kind: KindList, List: v} }
func NewMap(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{Kind: KindMap, Map: m}
}

// IsNull reports whether v is the null value.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Native converts a Value back into a plain interface{} tree, the shape
// produced by encoding/json or gopkg.in/yaml.v3 unmarshalling.
func (v Value) Native() interface{} {
	switch v.Kind {
	case KindNull:
		return nil
	case KindBool:
		return v.Bool
	case KindInt:
		return v.Int
	case KindFloat:
		return v.Flt
	case KindString:
		return v.Str
	case KindList:
		out := make([]interface{}, len(v.List))
		for i, e := range v.List {
			out[i] = e.Native()
		}
		return out
	case KindMap:
		out := make(map[string]interface{}, len(v.Map))
		for k, e := range v.Map {
			out[k] = e.Native()
		}
		return out
	default:
		return nil
	}
}

// FromNative converts a plain interface{} tree (as produced by yaml.v3 or
// encoding/json) into a Value, inferring the Kind from the Go dynamic type.
func FromNative(in interface{}) Value {
	switch t := in.(type) {
	case nil:
		return Null()
	case bool:
		return NewBool(t)
	case int:
		return NewInt(int64(t))
	case int64:
		return NewInt(t)
	case float64:
		if t == float64(int64(t)) {
			return NewInt(int64(t))
		}
		return NewFloat(t)
	case string:
		return NewString(t)
	case []interface{}:
		out := make([]Value, len(t))
		for i, e := range t {
			out[i] = FromNative(e)
		}
		return NewList(out)
	case []Value:
		return NewList(t)
	case map[string]interface{}:
		out := make(map[string]Value, len(t))
		for k, e := range t {
			out[k] = FromNative(e)
		}
		return NewMap(out)
	case map[interface{}]interface{}:
		out := make(map[string]Value, len(t))
		for k, e := range t {
			out[fmt.Sprintf("%v", k)] = FromNative(e)
		}
		return NewMap(out)
	case Value:
		return t
	default:
		return NewString(fmt.Sprintf("%v", t))
	}
}

// TaskStatus is the terminal or in-flight state of one task instance.
type TaskStatus string

const (
	StatusPending TaskStatus = "pending"
	StatusRunning TaskStatus = "running"
	StatusSuccess TaskStatus = "success"
	StatusFailed  TaskStatus = "failed"
	StatusSkipped TaskStatus = "skipped"
)

// RetryPolicy controls attempt count and fixed backoff between attempts.
type RetryPolicy struct {
	MaxAttempts     int     `yaml:"max_attempts" json:"max_attempts"`
	BackoffSeconds  float64 `yaml:"backoff_seconds,omitempty" json:"backoff_seconds,omitempty"`
}

func (r RetryPolicy) Attempts() int {
	if r.MaxAttempts < 1 {
		return 1
	}
	return r.MaxAttempts
}

func (r RetryPolicy) Backoff() time.Duration {
	if r.BackoffSeconds <= 0 {
		return 0
	}
	return time.Duration(r.BackoffSeconds * float64(time.Second))
}

// CachePolicy enables per-task caching and an optional TTL override.
type CachePolicy struct {
	Enabled    bool `yaml:"cache_enabled,omitempty" json:"cache_enabled,omitempty"`
	TTLSeconds *int `yaml:"cache_ttl,omitempty" json:"cache_ttl,omitempty"`
}

// Condition is either the structured operator/value/path form or the raw
// string-expression form; exactly one of Structured/Expr is set.
type Condition struct {
	Structured *ConditionClause
	Expr       string
}

// ConditionOperator enumerates the comparison operators of §4.3.
type ConditionOperator string

const (
	OpEq    ConditionOperator = "eq"
	OpNe    ConditionOperator = "ne"
	OpGt    ConditionOperator = "gt"
	OpLt    ConditionOperator = "lt"
	OpGte   ConditionOperator = "gte"
	OpLte   ConditionOperator = "lte"
	OpIn    ConditionOperator = "in"
	OpNotIn ConditionOperator = "not_in"
)

// ConditionClause is the structured {operator, value, path} form.
type ConditionClause struct {
	Operator ConditionOperator `yaml:"operator" json:"operator"`
	Value    interface{}       `yaml:"value" json:"value"`
	Path     string            `yaml:"path" json:"path"`
}

// TaskSpec is the static description of one DAG node, per spec.md §3.
type TaskSpec struct {
	InstanceID   string                 `yaml:"-" json:"instance_id"`
	Type         string                 `yaml:"type" json:"type"`
	Config       map[string]interface{} `yaml:"config" json:"config"`
	Dependencies []string               `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
	Condition    *Condition             `yaml:"-" json:"-"`
	Cache        CachePolicy            `yaml:",inline" json:"-"`
	Retry        *RetryPolicy           `yaml:"retry,omitempty" json:"retry,omitempty"`
	TimeoutSecs  *float64               `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`

	// Fan-out fields, mutually exclusive with a singleton task.
	ForEach        string                 `yaml:"for_each,omitempty" json:"for_each,omitempty"`
	ConfigTemplate map[string]interface{} `yaml:"config_template,omitempty" json:"config_template,omitempty"`
	MaxConcurrent  int                    `yaml:"max_concurrent,omitempty" json:"max_concurrent,omitempty"`

	// Consumes names the producer instance this task streams from; a task
	// qualifies as a producer purely by implementing StreamProducer, not by
	// a declared field.
	Consumes string `yaml:"consumes,omitempty" json:"consumes,omitempty"`

	declOrder int // position in the workflow's declared task order, for tie-breaking
}

// IsFanOut reports whether this spec expands into a dynamic task group.
func (t *TaskSpec) IsFanOut() bool { return t.ForEach != "" }

// DeclOrder returns the position at which this spec was declared, used to
// break ties among simultaneously-ready tasks and to resolve prev/prevN.
func (t *TaskSpec) DeclOrder() int { return t.declOrder }

// SetDeclOrder is called once by the loader while building a Workflow.
func (t *TaskSpec) SetDeclOrder(i int) { t.declOrder = i }

// TaskResult is the uniform envelope every task execution produces.
type TaskResult struct {
	Success    bool       `json:"success"`
	Output     Value      `json:"output"`
	Error      *ErrorInfo `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
	Attempts   int        `json:"attempts"`
	Skipped    bool       `json:"skipped,omitempty"`
}

// ErrorInfo is the serializable error record carried by a failed TaskResult.
type ErrorInfo struct {
	Kind              string `json:"kind"`
	Message           string `json:"message"`
	OriginInstanceID  string `json:"origin_instance_id,omitempty"`
}

// Workflow is the in-memory graph the Template Loader produces and the
// Scheduler consumes.
type Workflow struct {
	Name        string
	Cache       CacheConfig
	Tasks       map[string]*TaskSpec
	TaskOrder   []string // declaration order, for tie-breaking and prev resolution
	Environment map[string]string
	Variables   map[string]interface{}
}

// CacheConfig selects and configures the cache backend for a workflow run.
type CacheConfig struct {
	Type            string // "memory" | "file" | "redis" | ""
	MaxSize         int
	DefaultTTL      time.Duration
	CacheDir        string
	Host            string
	Port            int
	DB              int
	Password        string
	KeyPrefix       string
	MaxConnections  int
}

// WorkflowResult is the map of every instance_id to its final TaskResult,
// returned by Scheduler.Run, per spec.md §6 exit/failure surface.
type WorkflowResult struct {
	Name      string                 `json:"name"`
	Results   map[string]*TaskResult `json:"results"`
	StartedAt time.Time              `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at"`
	Cancelled bool                   `json:"cancelled,omitempty"`
}

// Task is the abstract unit of work the engine invokes, per spec.md §4.9/§6.
type Task interface {
	Type() string
	Execute(ctx context.Context, config map[string]interface{}) (*TaskResult, error)
}

// StreamProducer is implemented by tasks that publish onto a bounded channel
// owned by the scheduler while they run.
type StreamProducer interface {
	Task
	StreamOutput(ctx context.Context, config map[string]interface{}, out chan<- Value) (*TaskResult, error)
}

// StreamConsumer is implemented by tasks that read from a producer's channel.
type StreamConsumer interface {
	Task
	ConsumeStream(ctx context.Context, config map[string]interface{}, in <-chan StreamItem) (*TaskResult, error)
}

// StreamItem is one message on a producer/consumer channel. The last item
// has Done set; its Err is non-nil when the producer failed.
type StreamItem struct {
	Value Value
	Done  bool
	Err   error
}

// TaskFactory constructs a new Task instance for a given instance id.
type TaskFactory func(instanceID string) Task

// Logger provides structured logging, unchanged in shape from the teacher.
type Logger interface {
	Debug() LogEvent
	Info() LogEvent
	Warn() LogEvent
	Error() LogEvent
	With() LogContext
}

// LogEvent represents a log event being constructed.
type LogEvent interface {
	Str(key, val string) LogEvent
	Int(key string, val int) LogEvent
	Dur(key string, val time.Duration) LogEvent
	Err(err error) LogEvent
	Bool(key string, val bool) LogEvent
	Any(key string, val interface{}) LogEvent
	Msg(msg string)
	Msgf(format string, args ...interface{})
}

// LogContext represents a logger context being constructed.
type LogContext interface {
	Str(key, val string) LogContext
	Logger() Logger
}

// Concurrency bounds mirrored from the teacher, applied by
// ValidateConcurrency to the scheduler's global dispatch limit. A task's
// fan-out max_concurrent is not checked against them.
const (
	MinConcurrency     = 1
	MaxConcurrency     = 256
	DefaultConcurrency = 10
)

// ValidateConcurrency validates a concurrency value and returns a usable
// value or an error. Zero maps to DefaultConcurrency.
func ValidateConcurrency(value int) (int, error) {
	if value == 0 {
		return DefaultConcurrency, nil
	}
	if value < MinConcurrency {
		return 0, fmt.Errorf("max_concurrency must be at least %d, got %d", MinConcurrency, value)
	}
	if value > MaxConcurrency {
		return 0, fmt.Errorf("max_concurrency cannot exceed %d, got %d", MaxConcurrency, value)
	}
	return value, nil
}
