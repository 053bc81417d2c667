package frontend

import (
	"go/token"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	gopackages "golang.org/x/tools/go/packages"

	"neuraflow/internal/diag"
)

// LoadConfig configures how kernel sources are loaded before SSA
// construction.
type LoadConfig struct {
	Sources   []string
	BuildTags []string
	// CacheDir, when set, holds GOCACHE and GOMODCACHE for the load so
	// repeated compiles of the same directory stay hermetic.
	CacheDir string
}

// LoadPackages type-checks the package containing the requested source
// files. Load errors are reported through reporter and fail the load.
func LoadPackages(cfg LoadConfig, reporter *diag.Reporter) ([]*gopackages.Package, *token.FileSet, error) {
	if len(cfg.Sources) == 0 {
		return nil, nil, errors.New("no source files were provided")
	}

	fset := token.NewFileSet()
	dir := workingDir(cfg.Sources[0])
	if dir != "" {
		if absDir, err := filepath.Abs(dir); err == nil {
			dir = absDir
		}
	}

	env := os.Environ()
	if cfg.CacheDir != "" {
		goCache, goModCache, err := cacheDirs(cfg.CacheDir)
		if err != nil {
			return nil, nil, err
		}
		env = append(env, "GOCACHE="+goCache, "GOMODCACHE="+goModCache)
	}

	loadCfg := &gopackages.Config{
		Mode: gopackages.NeedName | gopackages.NeedSyntax | gopackages.NeedFiles |
			gopackages.NeedCompiledGoFiles | gopackages.NeedTypes | gopackages.NeedTypesInfo |
			gopackages.NeedImports | gopackages.NeedDeps | gopackages.NeedModule | gopackages.NeedTypesSizes,
		Fset:       fset,
		Env:        env,
		Dir:        dir,
		BuildFlags: buildTagFlag(cfg.BuildTags),
	}

	pkgs, err := gopackages.Load(loadCfg, ".")
	if err != nil {
		return nil, nil, errors.Wrap(err, "loading packages")
	}

	reporter.SetFileSet(fset)

	var hadErrors bool
	gopackages.Visit(pkgs, nil, func(pkg *gopackages.Package) {
		for _, loadErr := range pkg.Errors {
			reporter.Errorf("%s: %s", loadErr.Pos, loadErr.Msg)
			hadErrors = true
		}
	})
	if hadErrors {
		return nil, nil, errors.New("package loading failed")
	}
	return pkgs, fset, nil
}

func buildTagFlag(tags []string) []string {
	joined := strings.Join(tags, ",")
	if joined == "" {
		return nil
	}
	return []string{"-tags=" + joined}
}

func workingDir(sample string) string {
	if sample == "" {
		return ""
	}
	dir := filepath.Dir(sample)
	if dir == "." {
		return ""
	}
	return dir
}

func cacheDirs(root string) (string, string, error) {
	goCache := filepath.Join(root, "go-build")
	goModCache := filepath.Join(root, "gomod")
	for _, dir := range []string{goCache, goModCache} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", "", errors.Wrapf(err, "creating cache directory %s", dir)
		}
	}
	return goCache, goModCache, nil
}
