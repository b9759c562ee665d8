package architecture_test

import (
	"bufio"
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

type importRef struct {
	file string
	imp  string
}

// walkImports calls visit for every module-internal import under internal/.
func walkImports(t *testing.T, visit func(rel, imp, modulePath string)) {
	t.Helper()

	start, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	root, err := findModuleRoot(start)
	if err != nil {
		t.Fatalf("find module root: %v", err)
	}
	modulePath, err := readModulePath(filepath.Join(root, "go.mod"))
	if err != nil {
		t.Fatalf("read module path: %v", err)
	}

	fset := token.NewFileSet()
	walkErr := filepath.WalkDir(filepath.Join(root, "internal"), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			switch d.Name() {
			case ".git", "vendor", "testdata":
				return filepath.SkipDir
			default:
				return nil
			}
		}
		if !strings.HasSuffix(path, ".go") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return err
		}
		for _, spec := range f.Imports {
			if spec == nil || spec.Path == nil {
				continue
			}
			imp, err := strconv.Unquote(spec.Path.Value)
			if err != nil || !strings.HasPrefix(imp, modulePath+"/") {
				continue
			}
			visit(rel, imp, modulePath)
		}
		return nil
	})
	if walkErr != nil {
		t.Fatalf("walk internal/: %v", walkErr)
	}
}

func TestImportBoundaries(t *testing.T) {
	type violation struct {
		importRef
		rule string
	}
	var violations []violation

	walkImports(t, func(rel, imp, modulePath string) {
		for _, bad := range disallowedImports(modulePath, layerFor(rel)) {
			if strings.HasPrefix(imp+"/", bad) {
				violations = append(violations, violation{importRef{rel, imp}, bad})
				return
			}
		}
	})

	if len(violations) > 0 {
		var b strings.Builder
		b.WriteString("import boundary violations:\n")
		for _, v := range violations {
			fmt.Fprintf(&b, "- %s imports %q (disallowed: %q)\n", v.file, v.imp, v.rule)
		}
		t.Fatal(b.String())
	}
}

// Concrete vector and GCP providers are selected in internal/app only; the
// pipeline and analysis code sees the vectorstore and transcriber interfaces.
func TestProvidersOnlyWiredByApp(t *testing.T) {
	var violations []importRef
	walkImports(t, func(rel, imp, modulePath string) {
		if strings.HasPrefix(rel, "internal/app/") || strings.HasPrefix(rel, "internal/platform/") {
			return
		}
		for _, p := range []string{"qdrant", "pgvector", "gcp"} {
			if imp == modulePath+"/internal/platform/"+p {
				violations = append(violations, importRef{rel, imp})
				return
			}
		}
	})

	if len(violations) > 0 {
		var b strings.Builder
		b.WriteString("provider packages imported outside internal/app:\n")
		for _, v := range violations {
			fmt.Fprintf(&b, "- %s imports %q\n", v.file, v.imp)
		}
		t.Fatal(b.String())
	}
}

func layerFor(rel string) string {
	switch {
	case strings.HasPrefix(rel, "internal/pkg/"):
		return "pkg"
	case strings.HasPrefix(rel, "internal/domain/"):
		return "domain"
	case strings.HasPrefix(rel, "internal/data/"):
		return "data"
	case strings.HasPrefix(rel, "internal/platform/"):
		return "platform"
	case strings.HasPrefix(rel, "internal/jobs/"):
		return "jobs"
	case strings.HasPrefix(rel, "internal/htmlx/"):
		return "htmlx"
	case strings.HasPrefix(rel, "internal/pipeline/"),
		strings.HasPrefix(rel, "internal/ingestion/"),
		strings.HasPrefix(rel, "internal/analysis/"),
		strings.HasPrefix(rel, "internal/services/"),
		strings.HasPrefix(rel, "internal/status/"):
		return "domain_services"
	default:
		return ""
	}
}

func disallowedImports(modulePath string, layer string) []string {
	in := func(names ...string) []string {
		out := make([]string, 0, len(names))
		for _, n := range names {
			out = append(out, modulePath+"/internal/"+n+"/")
		}
		return out
	}
	upper := []string{"http", "app", "jobs", "pipeline", "ingestion", "analysis", "services", "status"}
	switch layer {
	case "pkg":
		return in(append(upper, "domain", "data", "platform", "realtime", "observability", "htmlx")...)
	case "domain":
		return in(append(upper, "data", "platform", "realtime", "observability", "htmlx")...)
	case "data":
		return in(append(upper, "platform", "realtime", "observability", "htmlx")...)
	case "platform":
		return in(append(upper, "data", "domain", "realtime", "observability")...)
	case "htmlx":
		return in(append(upper, "data", "domain", "platform")...)
	case "jobs":
		return in("http", "app", "pipeline", "ingestion", "analysis", "services", "status")
	case "domain_services":
		return in("http", "app")
	default:
		return nil
	}
}

func findModuleRoot(start string) (string, error) {
	dir := start
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found from %s", start)
		}
		dir = parent
	}
}

func readModulePath(goModPath string) (string, error) {
	f, err := os.Open(goModPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "module ") {
			continue
		}
		mp := strings.TrimSpace(strings.TrimPrefix(line, "module "))
		if mp == "" {
			return "", fmt.Errorf("empty module path in %s", goModPath)
		}
		return mp, nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("module path not found in %s", goModPath)
}
