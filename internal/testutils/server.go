package testutils

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"maps"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tidwall/redcon"
)

const (
	errWrongType = "WRONGTYPE Operation against a key holding the wrong kind of value"
	errNotInt    = "ERR value is not an integer or out of range"
	errSyntax    = "ERR syntax error"
)

// minArgs is the minimum argument count, command name included, of every
// command the server knows.
var minArgs = map[string]int{
	"PING": 1, "ECHO": 2, "AUTH": 2, "SELECT": 2, "QUIT": 1,
	"FLUSHALL": 1, "FLUSHDB": 1, "DBSIZE": 1,
	"GET": 2, "SET": 3, "DEL": 2, "EXISTS": 2, "PEXPIRE": 3, "PTTL": 2,
	"LPUSH": 3, "RPUSH": 3, "LPOP": 2, "RPOP": 2, "RPOPLPUSH": 3, "BRPOPLPUSH": 4,
	"LINDEX": 3, "LLEN": 2,
	"HGET": 3, "HSET": 4, "HSETNX": 4, "HDEL": 3, "HEXISTS": 3, "HLEN": 2,
	"HKEYS": 2, "HVALS": 2, "HGETALL": 2,
	"PUBLISH": 3, "SUBSCRIBE": 2,
	"SCRIPT": 2, "EVAL": 3, "EVALSHA": 3,
	"WATCH": 2, "UNWATCH": 1, "MULTI": 1, "EXEC": 1, "DISCARD": 1,
}

type replyWriter interface {
	WriteError(msg string)
	WriteString(str string)
	WriteBulk(bulk []byte)
	WriteBulkString(bulk string)
	WriteInt(num int)
	WriteInt64(num int64)
	WriteArray(count int)
	WriteNull()
}

type item struct {
	str     []byte
	list    [][]byte
	hash    map[string][]byte
	expires time.Time
}

func (it *item) kind() string {
	switch {
	case it.list != nil:
		return "list"
	case it.hash != nil:
		return "hash"
	default:
		return "string"
	}
}

type connState struct {
	authenticated bool
	db            int
	multi         bool
	dirty         bool
	queued        [][][]byte
	watched       map[string]uint64
}

// Server is an in-memory fake speaking the Redis protocol, built on redcon.
// It covers strings, lists, hashes, key expiration, WATCH/MULTI/EXEC,
// PUBLISH/SUBSCRIBE, AUTH, SELECT and a script cache.
//
// Scripts are not interpreted: EVAL and EVALSHA reply with the script
// source. Connections that subscribed stay in subscriber mode.
type Server struct {
	srv  *redcon.Server
	ln   net.Listener
	ps   redcon.PubSub
	addr string

	mu       sync.Mutex
	data     map[string]*item
	versions map[string]uint64
	scripts  map[string]string
	username string
	password string
	loading  int
	commands []string
	accepted int
	onExec   func()
}

// NewServer starts a server on a random local port. It is closed when the
// test ends.
func NewServer(tb testing.TB) *Server {
	tb.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		tb.Fatalf("listen: %v", err)
	}
	return NewServerOn(tb, ln)
}

// NewServerOn serves on ln, which can be a unix socket or a TLS listener.
// It is closed when the test ends.
func NewServerOn(tb testing.TB, ln net.Listener) *Server {
	tb.Helper()

	s := &Server{
		ln:       ln,
		addr:     ln.Addr().String(),
		data:     make(map[string]*item),
		versions: make(map[string]uint64),
		scripts:  make(map[string]string),
	}
	s.srv = redcon.NewServer(s.addr, s.handle, s.accept, nil)

	go func() {
		_ = s.srv.Serve(ln)
	}()
	tb.Cleanup(s.Close)
	return s
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return s.addr
}

// Close stops the server and closes every connection.
func (s *Server) Close() {
	if err := s.srv.Close(); err != nil {
		_ = s.ln.Close()
	}
}

// RequirePassword makes every connection authenticate first. An empty
// username accepts the password-only form.
func (s *Server) RequirePassword(username, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.username = username
	s.password = password
}

// SetLoading makes the next n commands fail with LOADING.
func (s *Server) SetLoading(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = n
}

// FlushScripts forgets the loaded scripts, as a server restart would.
func (s *Server) FlushScripts() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.scripts)
}

// OnExec registers fn to run once, when the next EXEC is received and
// before the watched keys are checked.
func (s *Server) OnExec(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onExec = fn
}

// Commands returns the names of the commands received so far.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.commands)
}

// CountCommands returns how many times a command was received.
func (s *Server) CountCommands(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, c := range s.commands {
		if c == name {
			n++
		}
	}
	return n
}

// Connections returns the number of connections accepted so far.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

func (s *Server) accept(conn redcon.Conn) bool {
	s.mu.Lock()
	s.accepted++
	s.mu.Unlock()

	conn.SetContext(&connState{})
	return true
}

func (s *Server) handle(conn redcon.Conn, cmd redcon.Command) {
	st := conn.Context().(*connState)
	name := strings.ToUpper(string(cmd.Args[0]))

	s.mu.Lock()
	s.commands = append(s.commands, name)
	loading := s.loading > 0
	if loading {
		s.loading--
	}
	needsAuth := s.password != "" && !st.authenticated
	s.mu.Unlock()

	switch {
	case loading:
		conn.WriteError("LOADING Redis is loading the dataset in memory")
		return
	case needsAuth && name != "AUTH" && name != "QUIT":
		conn.WriteError("NOAUTH Authentication required.")
		return
	}

	if st.multi {
		switch name {
		case "EXEC", "DISCARD", "MULTI", "WATCH":
		default:
			if msg := validate(cmd.Args); msg != "" {
				st.dirty = true
				conn.WriteError(msg)
				return
			}
			st.queued = append(st.queued, cloneArgs(cmd.Args))
			conn.WriteString("QUEUED")
			return
		}
	}

	switch name {
	case "QUIT":
		conn.WriteString("OK")
		_ = conn.Close()
	case "AUTH":
		s.auth(conn, st, cmd.Args)
	case "SUBSCRIBE":
		for _, channel := range cmd.Args[1:] {
			s.ps.Subscribe(conn, string(channel))
		}
	case "BRPOPLPUSH":
		s.brpoplpush(conn, st, cmd.Args)
	case "MULTI":
		if st.multi {
			conn.WriteError("ERR MULTI calls can not be nested")
			return
		}
		st.multi = true
		conn.WriteString("OK")
	case "DISCARD":
		if !st.multi {
			conn.WriteError("ERR DISCARD without MULTI")
			return
		}
		st.reset()
		conn.WriteString("OK")
	case "WATCH":
		if st.multi {
			conn.WriteError("ERR WATCH inside MULTI is not allowed")
			return
		}
		s.watch(st, cmd.Args[1:])
		conn.WriteString("OK")
	case "UNWATCH":
		st.watched = nil
		conn.WriteString("OK")
	case "EXEC":
		s.execTransaction(conn, st)
	default:
		s.mu.Lock()
		s.exec(conn, st, cmd.Args)
		s.mu.Unlock()
	}
}

func (st *connState) reset() {
	st.multi = false
	st.dirty = false
	st.queued = nil
	st.watched = nil
}

func (s *Server) auth(w replyWriter, st *connState, args [][]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.password == "" {
		w.WriteError("ERR AUTH called without any password configured for the default user")
		return
	}

	username, password := "", string(args[1])
	if len(args) > 2 {
		username, password = string(args[1]), string(args[2])
	}
	if password != s.password || (username != "" && username != s.username) {
		w.WriteError("WRONGPASS invalid username-password pair or user is disabled.")
		return
	}
	st.authenticated = true
	w.WriteString("OK")
}

func (s *Server) watch(st *connState, keys [][]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st.watched == nil {
		st.watched = make(map[string]uint64)
	}
	for _, k := range keys {
		key := s.key(st, k)
		if _, ok := st.watched[key]; !ok {
			st.watched[key] = s.versions[key]
		}
	}
}

func (s *Server) execTransaction(conn redcon.Conn, st *connState) {
	if !st.multi {
		conn.WriteError("ERR EXEC without MULTI")
		return
	}
	defer st.reset()

	if st.dirty {
		conn.WriteError("EXECABORT Transaction discarded because of previous errors.")
		return
	}

	s.mu.Lock()
	hook := s.onExec
	s.onExec = nil
	s.mu.Unlock()
	if hook != nil {
		hook()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, version := range st.watched {
		if s.versions[key] != version {
			conn.WriteArray(-1)
			return
		}
	}

	var buf bytes.Buffer
	w := redcon.NewWriter(&buf)
	for _, args := range st.queued {
		s.exec(w, st, args)
	}
	_ = w.Flush()

	conn.WriteArray(len(st.queued))
	conn.WriteRaw(buf.Bytes())
}

// brpoplpush polls without holding the lock until an element shows up or
// the timeout expires.
func (s *Server) brpoplpush(w replyWriter, st *connState, args [][]byte) {
	seconds, err := strconv.ParseFloat(string(args[3]), 64)
	if err != nil || seconds < 0 {
		w.WriteError("ERR timeout is not a float or out of range")
		return
	}

	var deadline time.Time
	if seconds > 0 {
		deadline = time.Now().Add(time.Duration(seconds * float64(time.Second)))
	}

	for {
		s.mu.Lock()
		src := s.lookup(s.key(st, args[1]))
		ready := src != nil && len(src.list) > 0
		if ready {
			s.exec(w, st, [][]byte{[]byte("RPOPLPUSH"), args[1], args[2]})
		}
		s.mu.Unlock()

		if ready {
			return
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			w.WriteNull()
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func validate(args [][]byte) string {
	name := strings.ToUpper(string(args[0]))
	n, ok := minArgs[name]
	if !ok {
		return "ERR unknown command '" + string(args[0]) + "'"
	}
	if len(args) < n {
		return "ERR wrong number of arguments for '" + strings.ToLower(name) + "' command"
	}
	return ""
}

func cloneArgs(args [][]byte) [][]byte {
	out := make([][]byte, len(args))
	for i, a := range args {
		out[i] = bytes.Clone(a)
	}
	return out
}

// key namespaces a key by the selected database.
func (s *Server) key(st *connState, k []byte) string {
	return strconv.Itoa(st.db) + ":" + string(k)
}

// lookup returns the live item at key, evicting it when expired.
func (s *Server) lookup(key string) *item {
	it, ok := s.data[key]
	if !ok {
		return nil
	}
	if !it.expires.IsZero() && !time.Now().Before(it.expires) {
		delete(s.data, key)
		s.versions[key]++
		return nil
	}
	return it
}

func (s *Server) touch(key string) {
	s.versions[key]++
}

func (s *Server) remove(key string) bool {
	if s.lookup(key) == nil {
		return false
	}
	delete(s.data, key)
	s.touch(key)
	return true
}

// container returns the item at key for a list or hash command, creating
// it when create is set. ok is false on a type mismatch.
func (s *Server) container(key, kind string, create bool) (it *item, ok bool) {
	it = s.lookup(key)
	if it == nil {
		if !create {
			return nil, true
		}
		it = &item{}
		switch kind {
		case "list":
			it.list = [][]byte{}
		case "hash":
			it.hash = map[string][]byte{}
		}
		s.data[key] = it
		return it, true
	}
	return it, it.kind() == kind
}

// exec runs a data command. s.mu must be held.
func (s *Server) exec(w replyWriter, st *connState, args [][]byte) {
	if msg := validate(args); msg != "" {
		w.WriteError(msg)
		return
	}
	name := strings.ToUpper(string(args[0]))
	key := func(i int) string { return s.key(st, args[i]) }

	switch name {
	case "PING":
		if len(args) > 1 {
			w.WriteBulk(args[1])
			return
		}
		w.WriteString("PONG")

	case "ECHO":
		w.WriteBulk(args[1])

	case "SELECT":
		db, err := strconv.Atoi(string(args[1]))
		if err != nil || db < 0 || db > 15 {
			w.WriteError("ERR DB index is out of range")
			return
		}
		st.db = db
		w.WriteString("OK")

	case "FLUSHALL", "FLUSHDB":
		for k := range s.data {
			s.touch(k)
		}
		clear(s.data)
		w.WriteString("OK")

	case "DBSIZE":
		w.WriteInt(len(s.data))

	case "GET":
		it := s.lookup(key(1))
		switch {
		case it == nil:
			w.WriteNull()
		case it.kind() != "string":
			w.WriteError(errWrongType)
		default:
			w.WriteBulk(it.str)
		}

	case "SET":
		s.set(w, key(1), args)

	case "DEL":
		n := 0
		for i := 1; i < len(args); i++ {
			if s.remove(key(i)) {
				n++
			}
		}
		w.WriteInt(n)

	case "EXISTS":
		n := 0
		for i := 1; i < len(args); i++ {
			if s.lookup(key(i)) != nil {
				n++
			}
		}
		w.WriteInt(n)

	case "PEXPIRE":
		ms, err := strconv.ParseInt(string(args[2]), 10, 64)
		if err != nil {
			w.WriteError(errNotInt)
			return
		}
		it := s.lookup(key(1))
		if it == nil {
			w.WriteInt(0)
			return
		}
		it.expires = time.Now().Add(time.Duration(ms) * time.Millisecond)
		s.touch(key(1))
		w.WriteInt(1)

	case "PTTL":
		it := s.lookup(key(1))
		switch {
		case it == nil:
			w.WriteInt(-2)
		case it.expires.IsZero():
			w.WriteInt(-1)
		default:
			w.WriteInt64(time.Until(it.expires).Milliseconds())
		}

	case "LPUSH", "RPUSH":
		it, ok := s.container(key(1), "list", true)
		if !ok {
			w.WriteError(errWrongType)
			return
		}
		for _, v := range args[2:] {
			if name == "LPUSH" {
				it.list = slices.Insert(it.list, 0, bytes.Clone(v))
			} else {
				it.list = append(it.list, bytes.Clone(v))
			}
		}
		s.touch(key(1))
		w.WriteInt(len(it.list))

	case "LPOP", "RPOP":
		v, ok := s.pop(key(1), name == "LPOP")
		switch {
		case !ok:
			w.WriteError(errWrongType)
		case v == nil:
			w.WriteNull()
		default:
			w.WriteBulk(v)
		}

	case "RPOPLPUSH":
		if _, ok := s.container(key(2), "list", false); !ok {
			w.WriteError(errWrongType)
			return
		}
		v, ok := s.pop(key(1), false)
		switch {
		case !ok:
			w.WriteError(errWrongType)
		case v == nil:
			w.WriteNull()
		default:
			dst, _ := s.container(key(2), "list", true)
			dst.list = slices.Insert(dst.list, 0, v)
			s.touch(key(2))
			w.WriteBulk(v)
		}

	case "LINDEX":
		index, err := strconv.Atoi(string(args[2]))
		if err != nil {
			w.WriteError(errNotInt)
			return
		}
		it, ok := s.container(key(1), "list", false)
		if !ok {
			w.WriteError(errWrongType)
			return
		}
		if it == nil {
			w.WriteNull()
			return
		}
		if index < 0 {
			index += len(it.list)
		}
		if index < 0 || index >= len(it.list) {
			w.WriteNull()
			return
		}
		w.WriteBulk(it.list[index])

	case "LLEN":
		it, ok := s.container(key(1), "list", false)
		switch {
		case !ok:
			w.WriteError(errWrongType)
		case it == nil:
			w.WriteInt(0)
		default:
			w.WriteInt(len(it.list))
		}

	case "HSET", "HSETNX":
		if (len(args)-2)%2 != 0 || (name == "HSETNX" && len(args) != 4) {
			w.WriteError("ERR wrong number of arguments for '" + strings.ToLower(name) + "' command")
			return
		}
		it, ok := s.container(key(1), "hash", true)
		if !ok {
			w.WriteError(errWrongType)
			return
		}
		created := 0
		for i := 2; i < len(args); i += 2 {
			field := string(args[i])
			_, exists := it.hash[field]
			if exists && name == "HSETNX" {
				continue
			}
			if !exists {
				created++
			}
			it.hash[field] = bytes.Clone(args[i+1])
		}
		if created > 0 || name == "HSET" {
			s.touch(key(1))
		}
		w.WriteInt(created)

	case "HGET", "HEXISTS":
		it, ok := s.container(key(1), "hash", false)
		if !ok {
			w.WriteError(errWrongType)
			return
		}
		var v []byte
		var found bool
		if it != nil {
			v, found = it.hash[string(args[2])]
		}
		switch {
		case name == "HEXISTS" && found:
			w.WriteInt(1)
		case name == "HEXISTS":
			w.WriteInt(0)
		case found:
			w.WriteBulk(v)
		default:
			w.WriteNull()
		}

	case "HDEL":
		it, ok := s.container(key(1), "hash", false)
		if !ok {
			w.WriteError(errWrongType)
			return
		}
		n := 0
		if it != nil {
			for _, f := range args[2:] {
				if _, exists := it.hash[string(f)]; exists {
					delete(it.hash, string(f))
					n++
				}
			}
			if len(it.hash) == 0 {
				delete(s.data, key(1))
			}
		}
		if n > 0 {
			s.touch(key(1))
		}
		w.WriteInt(n)

	case "HLEN", "HKEYS", "HVALS", "HGETALL":
		it, ok := s.container(key(1), "hash", false)
		if !ok {
			w.WriteError(errWrongType)
			return
		}
		var fields []string
		if it != nil {
			fields = slices.Sorted(maps.Keys(it.hash))
		}
		switch name {
		case "HLEN":
			w.WriteInt(len(fields))
		case "HKEYS":
			w.WriteArray(len(fields))
			for _, f := range fields {
				w.WriteBulkString(f)
			}
		case "HVALS":
			w.WriteArray(len(fields))
			for _, f := range fields {
				w.WriteBulk(it.hash[f])
			}
		case "HGETALL":
			w.WriteArray(2 * len(fields))
			for _, f := range fields {
				w.WriteBulkString(f)
				w.WriteBulk(it.hash[f])
			}
		}

	case "PUBLISH":
		w.WriteInt(s.ps.Publish(string(args[1]), string(args[2])))

	case "SCRIPT":
		s.script(w, args)

	case "EVAL":
		source := string(args[1])
		s.scripts[scriptSHA(source)] = source
		w.WriteBulkString(source)

	case "EVALSHA":
		source, ok := s.scripts[strings.ToLower(string(args[1]))]
		if !ok {
			w.WriteError("NOSCRIPT No matching script. Please use EVAL.")
			return
		}
		w.WriteBulkString(source)

	default:
		w.WriteError("ERR '" + name + "' is not allowed here")
	}
}

func (s *Server) set(w replyWriter, key string, args [][]byte) {
	var (
		expires time.Time
		nx, xx  bool
	)
	for i := 3; i < len(args); i++ {
		switch strings.ToUpper(string(args[i])) {
		case "NX":
			nx = true
		case "XX":
			xx = true
		case "PX", "EX":
			if i+1 >= len(args) {
				w.WriteError(errSyntax)
				return
			}
			n, err := strconv.ParseInt(string(args[i+1]), 10, 64)
			if err != nil || n <= 0 {
				w.WriteError("ERR invalid expire time in 'set' command")
				return
			}
			unit := time.Millisecond
			if strings.EqualFold(string(args[i]), "EX") {
				unit = time.Second
			}
			expires = time.Now().Add(time.Duration(n) * unit)
			i++
		default:
			w.WriteError(errSyntax)
			return
		}
	}
	if nx && xx {
		w.WriteError(errSyntax)
		return
	}

	exists := s.lookup(key) != nil
	if (nx && exists) || (xx && !exists) {
		w.WriteNull()
		return
	}

	s.data[key] = &item{str: bytes.Clone(args[2]), expires: expires}
	s.touch(key)
	w.WriteString("OK")
}

// pop removes an element from a list. ok is false on a type mismatch.
func (s *Server) pop(key string, head bool) (v []byte, ok bool) {
	it, ok := s.container(key, "list", false)
	if !ok || it == nil || len(it.list) == 0 {
		return nil, ok
	}
	if head {
		v, it.list = it.list[0], it.list[1:]
	} else {
		v, it.list = it.list[len(it.list)-1], it.list[:len(it.list)-1]
	}
	if len(it.list) == 0 {
		delete(s.data, key)
	}
	s.touch(key)
	return v, true
}

func (s *Server) script(w replyWriter, args [][]byte) {
	switch strings.ToUpper(string(args[1])) {
	case "LOAD":
		if len(args) != 3 {
			w.WriteError("ERR wrong number of arguments for 'script|load' command")
			return
		}
		source := string(args[2])
		sha := scriptSHA(source)
		s.scripts[sha] = source
		w.WriteBulkString(sha)
	case "FLUSH":
		clear(s.scripts)
		w.WriteString("OK")
	case "EXISTS":
		w.WriteArray(len(args) - 2)
		for _, sha := range args[2:] {
			if _, ok := s.scripts[strings.ToLower(string(sha))]; ok {
				w.WriteInt(1)
			} else {
				w.WriteInt(0)
			}
		}
	default:
		w.WriteError("ERR unknown subcommand '" + string(args[1]) + "'")
	}
}

func scriptSHA(source string) string {
	sum := sha1.Sum([]byte(source))
	return hex.EncodeToString(sum[:])
}
