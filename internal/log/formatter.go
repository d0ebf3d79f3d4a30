package log

import (
	"fmt"
	"path"
	"runtime"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// formatter renders entries through a pattern. Recognized verbs: %time,
// %level, %msg, %field, %caller, %func and %goroutine. Unknown text is
// copied through.
type formatter struct {
	pattern string
	time    string
}

func (f *formatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b strings.Builder
	rest := f.pattern
	for {
		i := strings.IndexByte(rest, '%')
		if i < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:i])
		rest = rest[i:]

		verb, value := f.verb(rest, entry)
		if verb == "" {
			b.WriteByte('%')
			rest = rest[1:]
			continue
		}
		b.WriteString(value)
		rest = rest[len(verb):]
	}
	return []byte(b.String()), nil
}

var verbs = []string{"%time", "%level", "%msg", "%field", "%caller", "%func", "%goroutine"}

func (f *formatter) verb(s string, entry *logrus.Entry) (string, string) {
	for _, v := range verbs {
		if !strings.HasPrefix(s, v) {
			continue
		}
		switch v {
		case "%time":
			return v, entry.Time.Format(f.time)
		case "%level":
			return v, entry.Level.String()
		case "%msg":
			return v, entry.Message
		case "%field":
			return v, fields(entry.Data)
		case "%caller":
			return v, caller(entry)
		case "%func":
			return v, function(entry)
		case "%goroutine":
			return v, goroutineID()
		}
	}
	return "", ""
}

// caller renders pkg/file.go:line, or "-" when caller reporting is off.
func caller(entry *logrus.Entry) string {
	if !entry.HasCaller() {
		return "-"
	}
	fn := entry.Caller.Function
	if i := strings.LastIndex(fn, "/"); i >= 0 {
		fn = fn[i+1:]
	}
	pkg, _, _ := strings.Cut(fn, ".")
	return fmt.Sprintf("%s/%s:%d", pkg, path.Base(entry.Caller.File), entry.Caller.Line)
}

func function(entry *logrus.Entry) string {
	if !entry.HasCaller() {
		return "-"
	}
	fn := entry.Caller.Function
	return fn[strings.LastIndex(fn, ".")+1:]
}

func goroutineID() string {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	// "goroutine 17 [running]:"
	f := strings.Fields(strings.TrimPrefix(string(buf[:n]), "goroutine "))
	if len(f) == 0 {
		return "unknown"
	}
	return f[0]
}

// fields renders key=value pairs sorted by key and joined by commas.
func fields(data logrus.Fields) string {
	if len(data) == 0 {
		return ""
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		if err, ok := data[k].(error); ok {
			b.WriteString(err.Error())
		} else {
			fmt.Fprint(&b, data[k])
		}
	}
	return b.String()
}
