package model

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	cue "cuelang.org/go/cue"
	cueerrors "cuelang.org/go/cue/errors"
)

// Detail codes, ordered from the least to the most specific. When the
// schema reports several errors for one field, the most specific wins.
const (
	CodeValidation      = "validation_error"
	CodeInvalidValue    = "invalid_value"
	CodeMissing         = "missing_required"
	CodeUnknownField    = "unknown_field"
	CodeOutOfRange      = "out_of_range"
	CodeTypeMismatch    = "type_mismatch"
	CodeInvalidEnum     = "invalid_enum"
	CodeInvalidSchedule = "invalid_schedule"
)

var codeRank = []string{
	CodeValidation,
	CodeInvalidValue,
	CodeMissing,
	CodeUnknownField,
	CodeOutOfRange,
	CodeTypeMismatch,
	CodeInvalidEnum,
	CodeInvalidSchedule,
}

// CueErrorDetail is a config validation error reworded for the user.
type CueErrorDetail struct {
	Path    string // kit.session_history_size
	Code    string
	Message string
	Pos     CueErrorPosition
	Raw     string // schema message
}

func (c CueErrorDetail) Attr(name string) slog.Attr {
	return slog.GroupAttrs(
		name,
		slog.String("code", c.Code),
		slog.String("path", c.Path),
		slog.String("message", c.Message),
		slog.String("file", c.Pos.Filename),
		slog.Int("line", c.Pos.Line),
		slog.Int("column", c.Pos.Column),
	)
}

type CueErrorPosition struct {
	Filename string
	Line     int
	Column   int
}

// enumPaths maps config paths to the schema definition listing their values.
var enumPaths = map[string]string{
	"kit.log_level":          "#Level",
	"kit.log_redirection":    "#Strategy",
	"service.jobs.*.program": "#Job.program",
}

// bounds describe the numeric ranges of config.cue in words.
var bounds = map[string]string{
	"version":                     "must be 0",
	"engine.wait_delay":           "must be a number of seconds greater than 0",
	"kit.session_history_size":    "must be between 1 and 999",
	"kit.async_concurrency_limit": "must be 1 or greater",
}

var (
	reSchedule = regexp.MustCompile(`^service\.jobs\.(\d+)\.schedule(\.|$)`)
	reJobIndex = regexp.MustCompile(`^service\.jobs\.\d+\.`)
	reBound    = regexp.MustCompile(`out of bound (\S+)\)`)
)

// CueErrDetails explains an error returned by LoadConfig, one detail per
// offending field. Errors not coming from the schema are returned as a
// single validation_error.
func CueErrDetails(err error) []CueErrorDetail {
	if err == nil {
		return nil
	}
	var cueErr cueerrors.Error
	if !errors.As(err, &cueErr) {
		return []CueErrorDetail{{Code: CodeValidation, Message: err.Error(), Raw: err.Error()}}
	}

	var (
		order []string
		best  = make(map[string]CueErrorDetail)
	)
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		raw := fmt.Sprintf(format, args...)
		path := normalizePath(e.Path())
		d := CueErrorDetail{Path: path, Raw: raw, Pos: position(e)}
		d.Code, d.Message = classify(path, raw)

		prev, ok := best[path]
		if !ok {
			order = append(order, path)
		}
		if !ok || rank(d.Code) > rank(prev.Code) {
			if ok && d.Pos.Filename == "" {
				d.Pos = prev.Pos
			}
			best[path] = d
		}
	}

	out := make([]CueErrorDetail, 0, len(order))
	for _, path := range order {
		out = append(out, best[path])
	}
	return out
}

func rank(code string) int {
	return slices.Index(codeRank, code)
}

func classify(path, raw string) (code, msg string) {
	field := last(path)
	if m := reSchedule.FindStringSubmatch(path); m != nil {
		return CodeInvalidSchedule, fmt.Sprintf("Schedule of job %s needs exactly one of cron or duration, and it must not be empty", m[1])
	}
	if def, ok := enumPaths[reJobIndex.ReplaceAllString(path, "service.jobs.*.")]; ok &&
		(strings.Contains(raw, "conflicting values") || strings.Contains(raw, "empty disjunction")) {
		values, dflt := enumStrings(definitions.LookupPath(cue.ParsePath(def)))
		msg = fmt.Sprintf("Field %s has invalid value: possible values (%s)", field, strings.Join(values, ","))
		if dflt != "" {
			msg += fmt.Sprintf(" (default %s)", dflt)
		}
		return CodeInvalidEnum, msg
	}

	switch {
	case strings.Contains(raw, "not allowed"):
		return CodeUnknownField, fmt.Sprintf("Field %s is not allowed", field)
	case strings.Contains(raw, "out of bound"):
		if b, ok := bounds[path]; ok {
			return CodeOutOfRange, fmt.Sprintf("Field %s %s", field, b)
		}
		if m := reBound.FindStringSubmatch(raw); m != nil {
			if m[1] == `!=""` {
				return CodeMissing, fmt.Sprintf("Field %s must not be empty", field)
			}
			return CodeOutOfRange, fmt.Sprintf("Field %s must be %s", field, m[1])
		}
		return CodeOutOfRange, fmt.Sprintf("Field %s is out of range", field)
	case strings.Contains(raw, "incomplete value"):
		return CodeMissing, fmt.Sprintf("Field %s is required", field)
	case strings.Contains(raw, "mismatched types"):
		return CodeTypeMismatch, fmt.Sprintf("Field %s has wrong type", field)
	case strings.Contains(raw, "conflicting values"):
		if b, ok := bounds[path]; ok {
			return CodeOutOfRange, fmt.Sprintf("Field %s %s", field, b)
		}
		return CodeInvalidValue, fmt.Sprintf("Field %s has invalid value", field)
	default:
		return CodeValidation, raw
	}
}

// enumStrings lists the string values of a disjunction and its default.
func enumStrings(v cue.Value) (values []string, dflt string) {
	if d, ok := v.Default(); ok {
		dflt, _ = d.String()
	}
	op, args := v.Expr()
	if op != cue.OrOp {
		args = []cue.Value{v}
	}
	for _, a := range args {
		if s, err := a.String(); err == nil && !slices.Contains(values, s) {
			values = append(values, s)
		}
	}
	return values, dflt
}

func position(err cueerrors.Error) CueErrorPosition {
	for _, p := range cueerrors.Positions(err) {
		if p.Filename() != "" {
			return CueErrorPosition{Filename: p.Filename(), Line: p.Line(), Column: p.Column()}
		}
	}
	return CueErrorPosition{}
}

// normalizePath drops the leading #Config selector.
func normalizePath(p []string) string {
	if len(p) > 0 && strings.HasPrefix(p[0], "#") {
		p = p[1:]
	}
	return strings.Join(p, ".")
}

func last(p string) string {
	return p[strings.LastIndexByte(p, '.')+1:]
}
