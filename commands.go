package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/pior/redis/resp"
)

// Condition is the optimistic concurrency switch of a write.
type Condition int

const (
	// Always writes unconditionally.
	Always Condition = iota
	// IfExists writes only when the key already exists (XX).
	IfExists
	// IfNotExists writes only when the key does not exist (NX).
	IfNotExists
)

// SetOptions are the optional arguments of SET.
type SetOptions struct {
	// Expiration sets a time to live with millisecond precision (PX).
	// Zero means no expiration.
	Expiration time.Duration

	// Condition makes the write conditional.
	Condition Condition
}

func key(k string) resp.Value { return resp.BulkStringFromString(k) }

func keys(ks []string) []resp.Value {
	out := make([]resp.Value, len(ks))
	for i, k := range ks {
		out[i] = key(k)
	}
	return out
}

func bulks(values [][]byte) []resp.Value {
	out := make([]resp.Value, len(values))
	for i, v := range values {
		out[i] = resp.BulkString(v)
	}
	return out
}

func milliseconds(d time.Duration) resp.Value {
	return resp.ValueOf(d.Milliseconds())
}

// NewPingCommand creates a PING command. The result is PONG.
func NewPingCommand() Command[string] {
	return NewCommand(StatusResult, "PING")
}

// NewAuthCommand creates an AUTH command. An empty username sends the
// password-only form.
func NewAuthCommand(username, password string) Command[bool] {
	if username == "" {
		return NewCommand(OKResult, "AUTH", key(password))
	}
	return NewCommand(OKResult, "AUTH", key(username), key(password))
}

// NewSelectCommand creates a SELECT command.
func NewSelectCommand(db int) Command[bool] {
	return NewCommand(OKResult, "SELECT", resp.ValueOf(db))
}

// NewGetCommand creates a GET command. A missing key is Unspecified.
func NewGetCommand(k string) Command[Optional[[]byte]] {
	return NewCommand(OptionalResult[[]byte], "GET", key(k))
}

// NewSetCommand creates a SET command. The result is false when the
// condition in opts prevented the write.
func NewSetCommand(k string, value []byte, opts SetOptions) Command[bool] {
	args := []resp.Value{key(k), resp.BulkString(value)}
	if opts.Expiration > 0 {
		args = append(args, key("PX"), milliseconds(opts.Expiration))
	}
	switch opts.Condition {
	case IfExists:
		args = append(args, key("XX"))
	case IfNotExists:
		args = append(args, key("NX"))
	}
	return NewCommand(OKResult, "SET", args...)
}

// NewDeleteCommand creates a DEL command. The result is the number of keys
// removed.
func NewDeleteCommand(ks ...string) Command[int64] {
	return NewCommand(IntResult, "DEL", keys(ks)...)
}

// NewExpireCommand creates a PEXPIRE command. The result is false when the
// key does not exist.
func NewExpireCommand(k string, ttl time.Duration) Command[bool] {
	return NewCommand(BoolResult, "PEXPIRE", key(k), milliseconds(ttl))
}

// NewExistsCommand creates an EXISTS command. The result is the number of
// keys that exist.
func NewExistsCommand(ks ...string) Command[int64] {
	return NewCommand(IntResult, "EXISTS", keys(ks)...)
}

// List commands

func NewLPushCommand(k string, values ...[]byte) Command[int64] {
	return NewCommand(IntResult, "LPUSH", append([]resp.Value{key(k)}, bulks(values)...)...)
}

func NewRPushCommand(k string, values ...[]byte) Command[int64] {
	return NewCommand(IntResult, "RPUSH", append([]resp.Value{key(k)}, bulks(values)...)...)
}

func NewLPopCommand(k string) Command[Optional[[]byte]] {
	return NewCommand(OptionalResult[[]byte], "LPOP", key(k))
}

func NewRPopCommand(k string) Command[Optional[[]byte]] {
	return NewCommand(OptionalResult[[]byte], "RPOP", key(k))
}

func NewRPopLPushCommand(source, destination string) Command[Optional[[]byte]] {
	return NewCommand(OptionalResult[[]byte], "RPOPLPUSH", key(source), key(destination))
}

// NewBRPopLPushCommand creates a BRPOPLPUSH command. The server blocks up
// to timeout, rounded up to seconds; zero blocks forever. The result is
// Unspecified on timeout.
func NewBRPopLPushCommand(source, destination string, timeout time.Duration) Command[Optional[[]byte]] {
	seconds := strconv.FormatInt(int64((timeout+time.Second-1)/time.Second), 10)
	return NewCommand(OptionalResult[[]byte], "BRPOPLPUSH", key(source), key(destination), key(seconds))
}

func NewLIndexCommand(k string, index int64) Command[Optional[[]byte]] {
	return NewCommand(OptionalResult[[]byte], "LINDEX", key(k), resp.ValueOf(index))
}

func NewLLenCommand(k string) Command[int64] {
	return NewCommand(IntResult, "LLEN", key(k))
}

// Hash commands

func NewHGetCommand(k, field string) Command[Optional[[]byte]] {
	return NewCommand(OptionalResult[[]byte], "HGET", key(k), key(field))
}

// NewHSetCommand creates an HSET command, or HSETNX with IfNotExists. The
// result reports whether a new field was created.
// IfExists is not supported by the server for hashes and is treated as
// Always.
func NewHSetCommand(k, field string, value []byte, cond Condition) Command[bool] {
	name := "HSET"
	if cond == IfNotExists {
		name = "HSETNX"
	}
	return NewCommand(BoolResult, name, key(k), key(field), resp.BulkString(value))
}

func NewHDelCommand(k string, fields ...string) Command[int64] {
	return NewCommand(IntResult, "HDEL", append([]resp.Value{key(k)}, keys(fields)...)...)
}

func NewHExistsCommand(k, field string) Command[bool] {
	return NewCommand(BoolResult, "HEXISTS", key(k), key(field))
}

func NewHLenCommand(k string) Command[int64] {
	return NewCommand(IntResult, "HLEN", key(k))
}

func NewHKeysCommand(k string) Command[[]string] {
	return NewCommand(ArrayResult[string], "HKEYS", key(k))
}

func NewHValsCommand(k string) Command[[][]byte] {
	return NewCommand(ArrayResult[[]byte], "HVALS", key(k))
}

func NewHGetAllCommand(k string) Command[map[string][]byte] {
	return NewCommand(MapResult[[]byte], "HGETALL", key(k))
}

// NewPublishCommand creates a PUBLISH command. The result is the number of
// subscribers that received the message.
func NewPublishCommand(channel string, message []byte) Command[int64] {
	return NewCommand(IntResult, "PUBLISH", key(channel), resp.BulkString(message))
}

// Scripting commands

func evalArgs(first resp.Value, ks []string, args []resp.Value) []resp.Value {
	out := make([]resp.Value, 0, 2+len(ks)+len(args))
	out = append(out, first, resp.ValueOf(len(ks)))
	out = append(out, keys(ks)...)
	return append(out, args...)
}

// NewEvalCommand creates an EVAL command sending the script source.
func NewEvalCommand(script string, ks []string, args ...resp.Value) Command[resp.Value] {
	return NewCommand(ValueResult, "EVAL", evalArgs(key(script), ks, args)...)
}

// NewEvalSHACommand creates an EVALSHA command for a loaded script.
func NewEvalSHACommand(sha string, ks []string, args ...resp.Value) Command[resp.Value] {
	return NewCommand(ValueResult, "EVALSHA", evalArgs(key(sha), ks, args)...)
}

// NewScriptLoadCommand creates a SCRIPT LOAD command. The result is the
// script hash.
func NewScriptLoadCommand(script string) Command[string] {
	return NewCommand(ScalarResult[string], "SCRIPT", key("LOAD"), key(script))
}

// NewScriptFlushCommand creates a SCRIPT FLUSH command.
func NewScriptFlushCommand() Command[bool] {
	return NewCommand(OKResult, "SCRIPT", key("FLUSH"))
}

// Commands provides typed command operations over any Executor.
// Client embeds it.
type Commands struct {
	executor Executor
}

var _ Querier = (*Commands)(nil)

// NewCommands creates a new Commands instance over the given executor.
func NewCommands(executor Executor) *Commands {
	return &Commands{executor: executor}
}

// Ping checks that the server answers.
func (c *Commands) Ping(ctx context.Context) error {
	_, err := Execute(ctx, c.executor, NewPingCommand())
	return err
}

// Get returns the value of a key, Unspecified when missing.
func (c *Commands) Get(ctx context.Context, k string) (Optional[[]byte], error) {
	return Execute(ctx, c.executor, NewGetCommand(k))
}

// Set stores a value. It returns false when opts.Condition prevented the
// write.
func (c *Commands) Set(ctx context.Context, k string, value []byte, opts SetOptions) (bool, error) {
	return Execute(ctx, c.executor, NewSetCommand(k, value, opts))
}

// Delete removes keys and returns how many existed.
func (c *Commands) Delete(ctx context.Context, ks ...string) (int64, error) {
	return Execute(ctx, c.executor, NewDeleteCommand(ks...))
}

// Expire sets a time to live on a key. It returns false when the key does
// not exist.
func (c *Commands) Expire(ctx context.Context, k string, ttl time.Duration) (bool, error) {
	return Execute(ctx, c.executor, NewExpireCommand(k, ttl))
}

// Exists returns how many of the keys exist.
func (c *Commands) Exists(ctx context.Context, ks ...string) (int64, error) {
	return Execute(ctx, c.executor, NewExistsCommand(ks...))
}

// Publish posts a message to a channel.
func (c *Commands) Publish(ctx context.Context, channel string, message []byte) (int64, error) {
	return Execute(ctx, c.executor, NewPublishCommand(channel, message))
}
