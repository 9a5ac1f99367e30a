// asmtool - offline bytecode transformer driven by an asm.toml manifest.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/RELAY-CN/ASM-Framework/asm"
	"github.com/RELAY-CN/ASM-Framework/classfile"
	"github.com/RELAY-CN/ASM-Framework/jar"
	"github.com/RELAY-CN/ASM-Framework/manifest"
	"github.com/RELAY-CN/ASM-Framework/report"
	"github.com/RELAY-CN/ASM-Framework/runtimegen"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	verbose := flag.Bool("v", false, "Verbose output")
	projectDir := flag.String("C", ".", "Project directory containing asm.toml")
	dumpPath := flag.String("dump", "", "Disassemble a .class file and exit")
	genSupport := flag.String("gen-support", "", "Write the runtime support classes into a directory and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: asmtool [options]\n\n")
		fmt.Fprintf(os.Stderr, "Transforms the classes configured in asm.toml with the registered mixins.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  asmtool                     # Transform per ./asm.toml\n")
		fmt.Fprintf(os.Stderr, "  asmtool -C ./build          # Transform per ./build/asm.toml\n")
		fmt.Fprintf(os.Stderr, "  asmtool -dump Test.class    # Disassemble one classfile\n")
		fmt.Fprintf(os.Stderr, "  asmtool -gen-support ./out  # Emit the CallbackInfo support class\n")
	}
	flag.Parse()

	verbosity := 1
	if *verbose {
		verbosity = 2
	}
	commonlog.Configure(verbosity, nil)

	if *dumpPath != "" {
		if err := dump(*dumpPath); err != nil {
			fail(err)
		}
		return
	}
	if *genSupport != "" {
		if err := writeSupport(*genSupport); err != nil {
			fail(err)
		}
		return
	}

	m, err := manifest.FindAndLoad(*projectDir)
	if err != nil {
		fail(err)
	}
	if m == nil {
		fail(fmt.Errorf("no asm.toml found under %s", *projectDir))
	}
	if err := run(m, *verbose); err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func dump(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	node, err := classfile.Parse(data)
	if err != nil {
		return err
	}
	fmt.Print(classfile.Sprint(node))
	return nil
}

func writeSupport(dir string) error {
	data, err := runtimegen.CallbackInfo()
	if err != nil {
		return err
	}
	path := filepath.Join(dir, asm.CallbackInfoClass+".class")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func run(m *manifest.Manifest, verbose bool) error {
	registry := asm.NewRegistry()
	var mixinNames []string

	for _, dir := range m.MixinDirPaths() {
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() || !strings.HasSuffix(path, ".class") {
				return err
			}
			data, readErr := os.ReadFile(path)
			if readErr != nil {
				return readErr
			}
			mx, loadErr := asm.LoadMixin(data)
			if loadErr != nil {
				return fmt.Errorf("%s: %w", path, loadErr)
			}
			if len(mx.Targets) == 0 && len(mx.Directives) == 0 && mx.ReplaceAll == nil {
				// A plain class in the mixin tree, not a mixin.
				return nil
			}
			registry.Register(mx)
			mixinNames = append(mixinNames, mx.Node.Name)
			return nil
		})
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
	}

	for mixinPath, prefix := range m.Mixins.Patterns {
		data, err := os.ReadFile(filepath.Join(m.Dir, mixinPath))
		if err != nil {
			return err
		}
		mx, err := asm.LoadMixin(data)
		if err != nil {
			return fmt.Errorf("%s: %w", mixinPath, err)
		}
		p := prefix
		registry.RegisterMatcher(func(name string) bool {
			return strings.HasPrefix(name, p)
		}, mx)
		mixinNames = append(mixinNames, mx.Node.Name)
	}

	if len(mixinNames) == 0 {
		return fmt.Errorf("no mixins found under %v", m.MixinDirPaths())
	}
	if m.Target.Input == "" {
		return fmt.Errorf("asm.toml has no target.input")
	}

	transformer := asm.NewTransformer(registry)
	rep := &report.Report{
		Input:  m.Target.Input,
		Output: m.Target.Output,
		Mixins: mixinNames,
	}
	transform := func(className string, data []byte) ([]byte, error) {
		out, outcome, err := transformer.TransformDetailed(className, data)
		if err != nil {
			return nil, err
		}
		rep.Add(className, outcome.Changed, outcome.Applied)
		if verbose && outcome.Changed {
			fmt.Printf("transformed %s (%d directives)\n", className, len(outcome.Applied))
		}
		return out, nil
	}

	var extra map[string][]byte
	if m.Runtime.BundleSupport {
		data, err := runtimegen.CallbackInfo()
		if err != nil {
			return err
		}
		extra = map[string][]byte{asm.CallbackInfoClass + ".class": data}
	}

	in := m.InputPath()
	out := m.OutputPath()
	info, err := os.Stat(in)
	if err != nil {
		return err
	}
	if info.IsDir() {
		err = jar.RewriteDir(in, out, transform, extra)
	} else {
		err = jar.Rewrite(in, out, transform, extra)
	}
	if err != nil {
		return err
	}

	if path := m.ReportPath(); path != "" {
		if err := report.WriteFile(path, rep); err != nil {
			return err
		}
	}
	fmt.Printf("Transformed %d of %d classes into %s\n", rep.ChangedCount(), len(rep.Classes), m.Target.Output)
	return nil
}
