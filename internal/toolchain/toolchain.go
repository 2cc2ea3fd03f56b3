// Package toolchain knows where the SearchGUI and PeptideShaker jars live,
// which command-line entry points they expose, and how to turn a structured
// argument list into a java invocation.
package toolchain

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kingrea/proteoflow/internal/runner"
)

// Entry points exposed by the two jars.
const (
	ClassFasta          = "eu.isas.searchgui.cmd.FastaCLI"
	ClassIDParameters   = "eu.isas.searchgui.cmd.IdentificationParametersCLI"
	ClassSearch         = "eu.isas.searchgui.cmd.SearchCLI"
	ClassPathSettings   = "eu.isas.peptideshaker.cmd.PathSettingsCLI"
	ClassPeptideShaker  = "eu.isas.peptideshaker.cmd.PeptideShakerCLI"
	ClassReport         = "eu.isas.peptideshaker.cmd.ReportCLI"
	defaultJavaBinary   = "java"
	ptmConfigDir        = "ptm"
	defaultHeapFraction = 0.75
)

// Tools resolves jar and support-file locations inside the tool installation.
type Tools struct {
	Dir                  string
	SearchGUIVersion     string
	PeptideShakerVersion string
}

// SearchGUIJar returns <dir>/<version>/<version>.jar.
func (t Tools) SearchGUIJar() string {
	return jarPath(t.Dir, t.SearchGUIVersion)
}

// PeptideShakerJar returns <dir>/<version>/<version>.jar.
func (t Tools) PeptideShakerJar() string {
	return jarPath(t.Dir, t.PeptideShakerVersion)
}

// PTMConfig returns <dir>/ptm/<name>.
func (t Tools) PTMConfig(name string) string {
	return filepath.Join(t.Dir, ptmConfigDir, name)
}

func jarPath(dir, version string) string {
	return filepath.Join(dir, version, version+".jar")
}

// Java builds java invocations.
type Java struct {
	// Binary defaults to "java".
	Binary string
	// Heap is the -Xmx value (e.g. "27G"); empty omits the flag.
	Heap string
}

// Invocation describes one entry-point call.
type Invocation struct {
	Step  string
	Jar   string
	Class string
	Args  *Args
	// Heavy invocations get the -Xmx flag.
	Heavy bool
}

// Command renders the invocation as a runner command.
func (j Java) Command(inv Invocation) runner.Command {
	binary := strings.TrimSpace(j.Binary)
	if binary == "" {
		binary = defaultJavaBinary
	}
	var argv []string
	if inv.Heavy && strings.TrimSpace(j.Heap) != "" {
		argv = append(argv, "-Xmx"+strings.TrimSpace(j.Heap))
	}
	argv = append(argv, "-cp", inv.Jar, inv.Class)
	if inv.Args != nil {
		argv = append(argv, inv.Args.Strings()...)
	}
	return runner.Command{Name: inv.Step, Binary: binary, Args: argv}
}

// Validate checks that the invocation names a jar and an entry point.
func (inv Invocation) Validate() error {
	if strings.TrimSpace(inv.Jar) == "" {
		return fmt.Errorf("toolchain: jar is required for %s", inv.Step)
	}
	if strings.TrimSpace(inv.Class) == "" {
		return fmt.Errorf("toolchain: class is required for %s", inv.Step)
	}
	return nil
}
