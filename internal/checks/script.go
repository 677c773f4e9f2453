package checks

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"go.starlark.net/starlark"

	"github.com/fraser29/zfmrf/pkg/zfmrf"
)

// checkPrefix marks exported check functions in a script.
const checkPrefix = "check_"

// scriptOrder places script checks after the builtins.
const scriptOrder = 100

// LoadScript loads lab-defined checks from a Starlark file. Every
// top-level function named check_* becomes a Check. A missing file is
// not an error; labs without local policy run the builtins only.
func LoadScript(path string, logger *slog.Logger) ([]Check, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read check script: %w", err)
	}

	thread := &starlark.Thread{
		Name: "checks:" + path,
		Print: func(_ *starlark.Thread, msg string) {
			logger.Debug("check script print", slog.String("msg", msg))
		},
	}

	globals, err := starlark.ExecFile(thread, path, content, nil) //nolint:staticcheck // SA1019: will migrate to ExecFileOptions later
	if err != nil {
		return nil, fmt.Errorf("check script error: %w", err)
	}

	var checks []Check
	for name, value := range globals {
		if !strings.HasPrefix(name, checkPrefix) {
			continue
		}
		fn, ok := value.(starlark.Callable)
		if !ok {
			continue
		}
		id := strings.ReplaceAll(strings.TrimPrefix(name, checkPrefix), "_", "-")
		checks = append(checks, Check{
			ID:    id,
			Name:  fmt.Sprintf("Script check %s", id),
			Order: scriptOrder,
			Fn:    scriptCheckFn(fn, logger),
		})
	}

	// Map iteration order is random; keep script checks stable.
	sort.Slice(checks, func(i, j int) bool { return checks[i].ID < checks[j].ID })

	if len(checks) > 0 {
		logger.Debug("loaded check script",
			slog.String("path", path),
			slog.Int("checks", len(checks)))
	}
	return checks, nil
}

// scriptCheckFn wraps a Starlark callable as a check function. The
// callable receives one argument, the subject dict, and returns True,
// False, None or a warning string.
func scriptCheckFn(fn starlark.Callable, logger *slog.Logger) func(context.Context, *zfmrf.Subject) Result {
	return func(_ context.Context, s *zfmrf.Subject) Result {
		dict, err := subjectToStarlark(s)
		if err != nil {
			return fail("could not describe subject: %v", err)
		}

		thread := &starlark.Thread{
			Name: "check:" + s.ID,
			Print: func(_ *starlark.Thread, msg string) {
				logger.Debug("check script print", slog.String("msg", msg))
			},
		}

		value, err := starlark.Call(thread, fn, starlark.Tuple{dict}, nil)
		if err != nil {
			return fail("check error: %v", err)
		}

		switch v := value.(type) {
		case starlark.Bool:
			if bool(v) {
				return Result{Status: StatusPass}
			}
			return Result{Status: StatusFail}
		case starlark.String:
			return warn("%s", string(v))
		case starlark.NoneType:
			return Result{Status: StatusSkip}
		default:
			return fail("check returned %s, want bool, string or None", value.Type())
		}
	}
}

// subjectToStarlark builds the dict handed to script checks.
//
// Keys: id, tags (dict of DICOM tag values, empty without meta),
// series (list of {number, description, images}), dicom_count,
// has_gating, has_spectra, has_dti, has_t1.
func subjectToStarlark(s *zfmrf.Subject) (starlark.Value, error) {
	dict := starlark.NewDict(8)
	_ = dict.SetKey(starlark.String("id"), starlark.String(s.ID))

	tags := starlark.NewDict(16)
	series := starlark.NewList(nil)
	if m, err := s.LoadMeta(); err == nil {
		for k, v := range m.Tags {
			_ = tags.SetKey(starlark.String(k), starlark.String(v))
		}
		for _, se := range m.Series {
			entry := starlark.NewDict(3)
			_ = entry.SetKey(starlark.String("number"), starlark.MakeInt(se.Number))
			_ = entry.SetKey(starlark.String("description"), starlark.String(se.Description))
			_ = entry.SetKey(starlark.String("images"), starlark.MakeInt(se.ImageCount))
			if err := series.Append(entry); err != nil {
				return nil, err
			}
		}
	}
	_ = dict.SetKey(starlark.String("tags"), tags)
	_ = dict.SetKey(starlark.String("series"), series)

	count, err := s.CountDICOMs()
	if err != nil {
		return nil, err
	}
	_ = dict.SetKey(starlark.String("dicom_count"), starlark.MakeInt64(count))
	_ = dict.SetKey(starlark.String("has_gating"), starlark.Bool(s.HasGatingData()))
	_ = dict.SetKey(starlark.String("has_spectra"), starlark.Bool(s.HasSpectra()))

	dti, err := s.HasDTI()
	if err != nil {
		return nil, err
	}
	t1, err := s.HasT1()
	if err != nil {
		return nil, err
	}
	_ = dict.SetKey(starlark.String("has_dti"), starlark.Bool(dti))
	_ = dict.SetKey(starlark.String("has_t1"), starlark.Bool(t1))

	return dict, nil
}
