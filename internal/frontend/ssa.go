package frontend

import (
	"github.com/pkg/errors"
	gopackages "golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"neuraflow/internal/diag"
)

// BuildSSA constructs SSA for every loaded package. The returned slice holds
// the SSA packages of the initial (non-dependency) packages.
func BuildSSA(pkgs []*gopackages.Package, reporter *diag.Reporter) (*ssa.Program, []*ssa.Package, error) {
	if len(pkgs) == 0 {
		return nil, nil, errors.New("no packages to build")
	}
	prog, ssaPkgs := ssautil.AllPackages(pkgs, ssa.InstantiateGenerics)
	for i, pkg := range ssaPkgs {
		if pkg == nil {
			reporter.Errorf("package %s has no SSA form", pkgs[i].PkgPath)
		}
	}
	if reporter.HasErrors() {
		return nil, nil, errors.New("SSA construction failed")
	}
	prog.Build()
	return prog, ssaPkgs, nil
}

// MainPackage returns the package named main among pkgs, or nil.
func MainPackage(pkgs []*ssa.Package) *ssa.Package {
	for _, pkg := range pkgs {
		if pkg == nil || pkg.Pkg == nil {
			continue
		}
		if pkg.Pkg.Path() == "main" || pkg.Pkg.Name() == "main" {
			return pkg
		}
	}
	return nil
}
