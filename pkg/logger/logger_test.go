package logger

import "testing"

type recorder struct {
	lines []string
	kv    [][]any
}

func (r *recorder) add(level, message string, keyvals []any) {
	r.lines = append(r.lines, level+" "+message)
	r.kv = append(r.kv, keyvals)
}

func (r *recorder) Log(m string, kv ...any)   { r.add("LOG", m, kv) }
func (r *recorder) Debug(m string, kv ...any) { r.add("DEBUG", m, kv) }
func (r *recorder) Info(m string, kv ...any)  { r.add("INFO", m, kv) }
func (r *recorder) Warn(m string, kv ...any)  { r.add("WARN", m, kv) }
func (r *recorder) Error(m string, kv ...any) { r.add("ERROR", m, kv) }
func (r *recorder) Fatal(m string, kv ...any) { r.add("FATAL", m, kv) }

func TestDispatchToAllInstances(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	Init(a, b)
	t.Cleanup(func() { Init() })

	Log("plain", "k", 1)
	Info("info")
	Warn("warn", "file", "x")

	for _, r := range []*recorder{a, b} {
		if len(r.lines) != 3 {
			t.Fatalf("got %d lines, want 3: %v", len(r.lines), r.lines)
		}
		if r.lines[0] != "LOG plain" || len(r.kv[0]) != 2 {
			t.Fatalf("Log() recorded %q %v, want keyvals forwarded", r.lines[0], r.kv[0])
		}
		if r.lines[2] != "WARN warn" {
			t.Fatalf("line 2 = %q", r.lines[2])
		}
	}
}

func TestNoInstancesIsNoop(t *testing.T) {
	Init()
	Info("nothing")
	Error("nothing")
}
