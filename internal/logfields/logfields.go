// Package logfields defines canonical slog field names so log keys do not
// drift between packages.
package logfields

import "log/slog"

const (
	KeyRepo       = "repository"
	KeyIntent     = "intent"
	KeyReason     = "reason"
	KeyStage      = "stage"
	KeyPipelineID = "pipeline_id"
	KeyScript     = "script"
	KeyLabel      = "label"
	KeyExitCode   = "exit_code"
	KeyEvent      = "event"
	KeyRef        = "ref"
	KeyVersion    = "version"
	KeyGroup      = "group"
	KeyComponent  = "component"
	KeyPath       = "path"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
)

func Repository(r string) slog.Attr   { return slog.String(KeyRepo, r) }
func Intent(k string) slog.Attr       { return slog.String(KeyIntent, k) }
func Reason(r string) slog.Attr       { return slog.String(KeyReason, r) }
func Stage(s string) slog.Attr        { return slog.String(KeyStage, s) }
func PipelineID(id string) slog.Attr  { return slog.String(KeyPipelineID, id) }
func Script(s string) slog.Attr       { return slog.String(KeyScript, s) }
func Label(l string) slog.Attr        { return slog.String(KeyLabel, l) }
func ExitCode(c int) slog.Attr        { return slog.Int(KeyExitCode, c) }
func Event(e string) slog.Attr        { return slog.String(KeyEvent, e) }
func Ref(r string) slog.Attr          { return slog.String(KeyRef, r) }
func Version(v string) slog.Attr      { return slog.String(KeyVersion, v) }
func Group(g string) slog.Attr        { return slog.String(KeyGroup, g) }
func Component(c string) slog.Attr    { return slog.String(KeyComponent, c) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
