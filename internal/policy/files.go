package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"toolhost/internal/core/errors"
	"toolhost/internal/shared/util"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

const (
	contextFileSuffix = "_context"
	modeFileSuffix    = "_mode"
)

var policyExtensions = []string{".json", ".yaml", ".yml"}

// FilePatterns returns base-name globs matching every context and mode file
// the loader can read.
func FilePatterns() []string {
	out := make([]string, 0, 2*len(policyExtensions))
	for _, suffix := range []string{contextFileSuffix, modeFileSuffix} {
		for _, ext := range policyExtensions {
			out = append(out, "*"+suffix+ext)
		}
	}
	return out
}

func ReadContextFile(path string) (Context, error) {
	var ctx Context
	if err := decodeFile(path, &ctx); err != nil {
		return Context{}, err
	}
	if strings.TrimSpace(ctx.Name) == "" {
		ctx.Name = nameFromPath(path, contextFileSuffix)
	}
	if ctx.Tools == nil {
		ctx.Tools = []string{}
	}
	return ctx.clone(), nil
}

func ReadModeFile(path string) (Mode, error) {
	var m Mode
	if err := decodeFile(path, &m); err != nil {
		return Mode{}, err
	}
	if strings.TrimSpace(m.Name) == "" {
		m.Name = nameFromPath(path, modeFileSuffix)
	}
	return m.clone(), nil
}

// WriteContextFile writes <dir>/<name>_context.json and returns its path.
func WriteContextFile(dir string, ctx Context) (string, error) {
	if err := checkFileName("context", ctx.Name); err != nil {
		return "", err
	}
	ctx = ctx.clone()
	path := filepath.Join(dir, ctx.Name+contextFileSuffix+".json")
	return path, writeJSON(path, ctx)
}

// WriteModeFile writes <dir>/<name>_mode.json and returns its path.
func WriteModeFile(dir string, m Mode) (string, error) {
	if err := checkFileName("mode", m.Name); err != nil {
		return "", err
	}
	m = m.clone()
	path := filepath.Join(dir, m.Name+modeFileSuffix+".json")
	return path, writeJSON(path, m)
}

// checkFileName keeps authored files inside their directory.
func checkFileName(kind, name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New(errors.CodeConfiguration, kind+" name must not be empty")
	}
	if util.ContainsPathSeparator(name) || strings.Contains(name, "..") {
		return errors.AddContext(errors.New(errors.CodeConfiguration, kind+" name must not contain path separators or \"..\""), errors.CtxPath, name)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.CodeConfiguration, "encode policy file")
	}
	data = append(data, '\n')
	if err := util.WriteFileWithDirs(path, data, 0o644); err != nil {
		return errors.AddContext(errors.Wrap(err, errors.CodeConfiguration, "write policy file"), errors.CtxPath, path)
	}
	return nil
}

func decodeFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.AddContext(errors.Wrap(err, errors.CodeConfiguration, "read policy file"), errors.CtxPath, path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, out)
	default:
		err = json.Unmarshal(jsonc.ToJSON(data), out)
	}
	if err != nil {
		return errors.AddContext(errors.Wrap(err, errors.CodeConfiguration, "decode policy file"), errors.CtxPath, path)
	}
	return nil
}

func nameFromPath(path, suffix string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.TrimSuffix(base, suffix)
}

func isFileRef(ref string) bool {
	if util.ContainsPathSeparator(ref) {
		return true
	}
	ext := strings.ToLower(filepath.Ext(ref))
	for _, candidate := range policyExtensions {
		if ext == candidate {
			return true
		}
	}
	return false
}

func findInDirs(dirs []string, name, suffix string) (string, bool) {
	for _, dir := range dirs {
		for _, ext := range policyExtensions {
			candidate := filepath.Join(dir, name+suffix+ext)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate, true
			}
		}
	}
	return "", false
}

func notFound(kind, ref string) error {
	return errors.AddContext(errors.New(errors.CodeConfiguration, fmt.Sprintf("%s %q not found", kind, ref)), kind, ref)
}
